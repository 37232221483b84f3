package auth

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFTokenHeader carries the token for API clients, in both directions.
const CSRFTokenHeader = "X-CSRF-Token"

const (
	csrfContextKey = "csrf_token"
	csrfFormField  = "gorilla.csrf.Token"
	csrfRetryHint  = "Your form expired. Please try again."
)

// CSRFMiddleware rejects unsafe requests (anything but GET, HEAD, OPTIONS and
// TRACE) that lack a valid token. Forms send it as a hidden field, API
// clients in the X-CSRF-Token header; every response carries the current
// token in that header and in the gin context for templates.
func CSRFMiddleware(secret []byte, secure bool) gin.HandlerFunc {
	protect := csrf.Protect(
		secret,
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.Path("/"),
		csrf.RequestHeader(CSRFTokenHeader),
		csrf.FieldName(csrfFormField),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)

	return func(c *gin.Context) {
		// Plain HTTP requests skip gorilla's HTTPS-only Referer check
		if c.Request.TLS == nil && c.GetHeader("X-Forwarded-Proto") != "https" {
			c.Request = csrf.PlaintextHTTPRequest(c.Request)
		}

		passed := false
		protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			token := csrf.Token(r)
			c.Set(csrfContextKey, token)
			c.Header(CSRFTokenHeader, token)
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		// A rejected request must not reach the handlers behind this one
		if !passed {
			c.Abort()
		}
	}
}

// csrfErrorHandler answers a rejected request: JSON for API clients, a
// redirect back to the form when the Referer is known, a short page otherwise.
func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	if acceptsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"CSRF token invalid or missing"}`))
		return
	}

	if back, err := url.Parse(r.Referer()); err == nil && r.Referer() != "" {
		q := back.Query()
		q.Set("error", csrfRetryHint)
		back.RawQuery = q.Encode()
		http.Redirect(w, r, back.String(), http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_ = expiredPage.Execute(w, csrfRetryHint)
}

var expiredPage = template.Must(template.New("expired").Parse(`<!DOCTYPE html>
<html>
<head><title>Form Expired</title></head>
<body style="font-family: system-ui; max-width: 400px; margin: 100px auto; text-align: center;">
<h1>Form Expired</h1>
<p>{{.}}</p>
<p><a href="/books">Back to the catalog</a></p>
</body>
</html>`))

// GetCSRFToken returns the token set by CSRFMiddleware, or "".
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(csrfContextKey)
}
