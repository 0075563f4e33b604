package httptransport

import (
	"net/http"
	"net/url"
	"strings"

	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/httputil"
)

// HandleLogin forwards the browser to the external sign-in page. The next
// parameter must be a path on this host; anything else falls back to "/"
// so /login cannot be used as an open redirect.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.loginURL == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "sign-in is not configured"))
		return
	}
	target, err := url.Parse(h.loginURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "invalid login url", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "sign-in is misconfigured"))
		return
	}

	q := target.Query()
	q.Set("return_to", requestScheme(r)+"://"+r.Host+safeNext(r.URL.Query().Get("next")))
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return "/"
	}
	return next
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return "https"
	}
	return "http"
}
