package models

// Outcome is a stable, user-visible pipeline result.
type Outcome string

const (
	OutcomeAllowed             Outcome = "allowed"
	OutcomeUnknownTenant       Outcome = "unknown_tenant"
	OutcomeTenantSuspended     Outcome = "tenant_suspended"
	OutcomeTenantInactive      Outcome = "tenant_inactive"
	OutcomeUnauthenticated     Outcome = "unauthenticated"
	OutcomeNoMembership        Outcome = "no_membership"
	OutcomeMembershipSuspended Outcome = "membership_suspended"
	OutcomeInsufficientRole    Outcome = "insufficient_role"
	OutcomeFeatureUnavailable  Outcome = "feature_unavailable"
	OutcomeInternalError       Outcome = "internal_error"
	// OutcomeNotFound answers unclassified routes and root-only routes on
	// school hosts.
	OutcomeNotFound Outcome = "not_found"
)

// Class groups outcomes by the stage that produced them.
type Class string

const (
	ClassNone           Class = ""
	ClassResolution     Class = "resolution"
	ClassVerification   Class = "verification"
	ClassMembership     Class = "membership"
	ClassAuthorization  Class = "authorization"
	ClassInfrastructure Class = "infrastructure"
)

// Class returns the error class of o.
func (o Outcome) Class() Class {
	switch o {
	case OutcomeUnknownTenant, OutcomeTenantSuspended, OutcomeTenantInactive, OutcomeNotFound:
		return ClassResolution
	case OutcomeUnauthenticated:
		return ClassVerification
	case OutcomeNoMembership, OutcomeMembershipSuspended:
		return ClassMembership
	case OutcomeInsufficientRole, OutcomeFeatureUnavailable:
		return ClassAuthorization
	case OutcomeInternalError:
		return ClassInfrastructure
	}
	return ClassNone
}

// Retryable is true only for infrastructure failures.
func (o Outcome) Retryable() bool {
	return o.Class() == ClassInfrastructure
}

// Decision is the authorization engine's answer. It is never stored.
type Decision struct {
	Allowed bool
	Reason  Outcome
}

func Allow() Decision {
	return Decision{Allowed: true, Reason: OutcomeAllowed}
}

func Deny(reason Outcome) Decision {
	return Decision{Allowed: false, Reason: reason}
}
