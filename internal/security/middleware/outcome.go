package middleware

import (
	"net/http"
	"net/url"

	"campusgate/internal/security/models"
	"campusgate/pkg/platform/httputil"
)

// Remediation tells the client what the user can do about a denial.
type Remediation string

const (
	RemediationCheckAddress       Remediation = "check_school_address"
	RemediationContactSchool      Remediation = "contact_school"
	RemediationSchoolClosed       Remediation = "school_closed"
	RemediationLogin              Remediation = "login"
	RemediationUseCorrectSchool   Remediation = "use_correct_school"
	RemediationContactSchoolAdmin Remediation = "contact_school_admin"
	RemediationAskAdmin           Remediation = "ask_admin"
	RemediationUpgradePlan        Remediation = "upgrade_plan"
	RemediationRetry              Remediation = "retry"
)

// LoginPath is where unauthenticated users are sent, with the original
// destination in the next parameter.
const LoginPath = "/login"

// OutcomeResponse is the body of every pipeline denial.
type OutcomeResponse struct {
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
	Remediation      Remediation `json:"remediation,omitempty"`
	LoginURL         string      `json:"login_url,omitempty"`
	Retryable        bool        `json:"retryable"`
}

type outcomeSpec struct {
	status      int
	description string
	remediation Remediation
}

var outcomeSpecs = map[models.Outcome]outcomeSpec{
	models.OutcomeUnknownTenant:       {http.StatusNotFound, "School not found. Check the address you used.", RemediationCheckAddress},
	models.OutcomeTenantSuspended:     {http.StatusForbidden, "This school is suspended. Contact the school office.", RemediationContactSchool},
	models.OutcomeTenantInactive:      {http.StatusGone, "This school is no longer active.", RemediationSchoolClosed},
	models.OutcomeUnauthenticated:     {http.StatusUnauthorized, "Sign in to continue.", RemediationLogin},
	models.OutcomeNoMembership:        {http.StatusForbidden, "Your account is not a member of this school.", RemediationUseCorrectSchool},
	models.OutcomeMembershipSuspended: {http.StatusForbidden, "Your access to this school is suspended.", RemediationContactSchoolAdmin},
	models.OutcomeInsufficientRole:    {http.StatusForbidden, "Your role does not allow this. Ask your school admin for access.", RemediationAskAdmin},
	models.OutcomeFeatureUnavailable:  {http.StatusForbidden, "This feature is not part of your school's plan. Upgrade to use it.", RemediationUpgradePlan},
	models.OutcomeInternalError:       {http.StatusServiceUnavailable, "The service is temporarily unavailable. Try again shortly.", RemediationRetry},
	models.OutcomeNotFound:            {http.StatusNotFound, "Not found.", ""},
}

// StatusFor returns the HTTP status of a denial.
func StatusFor(o models.Outcome) int {
	if spec, ok := outcomeSpecs[o]; ok {
		return spec.status
	}
	return http.StatusInternalServerError
}

func writeOutcome(w http.ResponseWriter, r *http.Request, o models.Outcome) {
	spec, ok := outcomeSpecs[o]
	if !ok {
		o, spec = models.OutcomeInternalError, outcomeSpecs[models.OutcomeInternalError]
	}
	body := OutcomeResponse{
		Error:            string(o),
		ErrorDescription: spec.description,
		Remediation:      spec.remediation,
		Retryable:        o.Retryable(),
	}
	if o == models.OutcomeUnauthenticated {
		body.LoginURL = LoginURL(r)
	}
	if o.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, spec.status, body)
}

// LoginURL preserves the request's destination for the post-login redirect.
func LoginURL(r *http.Request) string {
	return LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
}
