package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/library/internal/auth"
	"github.com/mrlokans/library/internal/circulation"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// ActionResponse answers a successful form action for JSON clients.
type ActionResponse struct {
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect"`
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondNotFound sends a 404 Not Found response.
func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found"})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// actorFrom builds the circulation actor for the authenticated user.
func actorFrom(c *gin.Context) circulation.Actor {
	return circulation.ActorFor(auth.GetUser(c))
}

// --- Views ---

// views renders pages as HTML for browsers and JSON for API clients, and
// answers form actions with a flash message and redirect.
type views struct {
	html     bool
	sessions *auth.SessionManager
}

// wantsJSON reports whether the response should be JSON rather than a page.
func (v *views) wantsJSON(c *gin.Context) bool {
	return !v.html || auth.IsAPIRequest(c)
}

// render writes data as the named template, or as JSON. Pages additionally
// receive the current user, CSRF token and pending flash message.
func (v *views) render(c *gin.Context, status int, name string, data gin.H) {
	if v.wantsJSON(c) {
		c.JSON(status, data)
		return
	}

	page := gin.H{
		"user":       auth.GetUser(c),
		"csrf_token": auth.GetCSRFToken(c),
	}
	if v.sessions != nil {
		page["flash"] = v.sessions.PopFlash(c.Request.Context())
	}
	for k, val := range data {
		page[k] = val
	}
	c.HTML(status, name, page)
}

// respondAction finishes a form action. Success and validation or
// authorization failures redirect with a flash message; JSON clients get the
// message and redirect target in the body instead. Missing records end the
// request with 404, anything unexpected with 500.
func (v *views) respondAction(c *gin.Context, err error, message, redirect string) {
	if err == nil {
		if v.wantsJSON(c) {
			c.JSON(http.StatusOK, ActionResponse{Message: message, Redirect: redirect})
			return
		}
		v.flash(c, auth.FlashSuccess, message)
		c.Redirect(http.StatusSeeOther, redirect)
		return
	}

	kind := circulation.Kind(err)
	switch kind {
	case circulation.KindNotFound:
		if v.wantsJSON(c) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
		c.String(http.StatusNotFound, "not found")
	case circulation.KindValidation, circulation.KindForbidden:
		status := http.StatusBadRequest
		if kind == circulation.KindForbidden {
			status = http.StatusForbidden
		}
		msg := circulation.Public(err).Error()
		if v.wantsJSON(c) {
			c.JSON(status, ErrorResponse{Error: msg, Redirect: redirect})
			return
		}
		v.flash(c, auth.FlashError, msg)
		c.Redirect(http.StatusSeeOther, redirect)
	default:
		log.Printf("Internal error (%s %s): %v", c.Request.Method, c.FullPath(), err)
		if v.wantsJSON(c) {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		c.String(http.StatusInternalServerError, "internal server error")
	}
}

// bindForm decodes the request body into form. A body that cannot be
// decoded gets a 400 for JSON clients and an error flash plus a redirect
// for browsers.
func (v *views) bindForm(c *gin.Context, form any, redirect string) bool {
	err := c.ShouldBind(form)
	if err == nil {
		return true
	}
	log.Printf("Rejected form on %s %s: %v", c.Request.Method, c.FullPath(), err)
	if v.wantsJSON(c) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgMalformedForm, Redirect: redirect})
		return false
	}
	v.flash(c, auth.FlashError, msgMalformedForm)
	c.Redirect(http.StatusSeeOther, redirect)
	return false
}

const msgMalformedForm = "malformed request body"

// requireAdmin stops the request unless the actor is an administrator.
func (v *views) requireAdmin(c *gin.Context) bool {
	if actorFrom(c).IsAdmin() {
		return true
	}
	v.respondAction(c, circulation.ErrNotAdmin, "", "/")
	return false
}

func (v *views) flash(c *gin.Context, kind, message string) {
	if v.sessions == nil || message == "" {
		return
	}
	v.sessions.SetFlash(c.Request.Context(), kind, message)
}
