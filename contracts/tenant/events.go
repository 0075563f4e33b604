// Package tenant holds the tenant event shapes shared with other services.
// They are versioned apart from the directory models so billing can
// publish without importing campusgate internals.
package tenant

// ContractVersion identifies the event schema. Bump on breaking changes.
const ContractVersion = "v1.0.0"

// Lifecycle event types billing publishes when a subscription changes.
const (
	EventPaymentFailed  = "payment_failed"
	EventRenewed        = "subscription_renewed"
	EventPlanChanged    = "plan_changed"
	EventCancelled      = "subscription_cancelled"
	EventSchoolArchived = "school_archived"
)

// LifecycleEvent is the record value on the tenant lifecycle topic. The
// record key is the tenant key; TenantKey may be left empty when it is.
type LifecycleEvent struct {
	Version   string `json:"version,omitempty"`
	Type      string `json:"type"`
	TenantID  string `json:"tenant_id"`
	TenantKey string `json:"tenant_key"`
}
