package http

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/library/internal/auth"
	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/directory"
)

// UsersController serves the administrator's user directory.
type UsersController struct {
	*views
	directory *directory.Directory
	service   *circulation.Service
	pageSize  int
}

func NewUsersController(v *views, dir *directory.Directory, service *circulation.Service, pageSize int) *UsersController {
	return &UsersController{views: v, directory: dir, service: service, pageSize: pageSize}
}

// List handles GET /users?page=
func (uc *UsersController) List(c *gin.Context) {
	if !uc.requireAdmin(c) {
		return
	}
	ctx := c.Request.Context()

	page, err := uc.directory.Users(ctx, c.Query("page"), uc.pageSize)
	if err != nil {
		respondInternalError(c, err, "list users")
		return
	}
	totals, err := uc.directory.Totals(ctx)
	if err != nil {
		respondInternalError(c, err, "user totals")
		return
	}

	uc.render(c, http.StatusOK, "users.html", gin.H{
		"users":  page,
		"totals": totals,
	})
}

// Delete handles POST /users/:id/delete
func (uc *UsersController) Delete(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	user, err := uc.service.DeleteUser(c.Request.Context(), actorFrom(c), userID)
	if err != nil {
		uc.respondAction(c, err, "", "/users")
		return
	}
	uc.respondAction(c, nil, fmt.Sprintf("user '%s' deleted", user.Username), "/users")
}

// ProfileController lets a user review their account and change password.
type ProfileController struct {
	*views
	authService *auth.Service
}

// NewProfileController creates a new ProfileController.
func NewProfileController(v *views, authService *auth.Service) *ProfileController {
	return &ProfileController{views: v, authService: authService}
}

// ProfilePage handles GET /profile
func (pc *ProfileController) ProfilePage(c *gin.Context) {
	user, err := pc.authService.GetUserByID(auth.GetUserID(c))
	if err != nil {
		respondInternalError(c, err, "load profile")
		return
	}

	pc.render(c, http.StatusOK, "profile.html", gin.H{
		"profile": user,
		"balance": user.Balance.StringFixed(2),
	})
}

type passwordForm struct {
	Current string `form:"current_password" json:"current_password"`
	New     string `form:"new_password" json:"new_password"`
	Confirm string `form:"confirm_password" json:"confirm_password"`
}

// ChangePassword handles POST /profile/password
func (pc *ProfileController) ChangePassword(c *gin.Context) {
	var form passwordForm
	if !pc.bindForm(c, &form, "/profile") {
		return
	}

	if form.New != form.Confirm {
		pc.passwordFailed(c, auth.ErrPasswordMismatch.Error())
		return
	}

	err := pc.authService.ChangePassword(auth.GetUserID(c), form.Current, form.New)
	switch {
	case err == nil:
		pc.respondAction(c, nil, "password changed", "/profile")
	case errors.Is(err, auth.ErrInvalidPassword):
		pc.passwordFailed(c, "current password is incorrect")
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		pc.passwordFailed(c, err.Error())
	default:
		log.Printf("[AUTH] password change for user %d failed: %v", auth.GetUserID(c), err)
		pc.passwordFailed(c, "failed to change password")
	}
}

func (pc *ProfileController) passwordFailed(c *gin.Context, message string) {
	if pc.wantsJSON(c) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Redirect: "/profile"})
		return
	}
	pc.flash(c, auth.FlashError, message)
	c.Redirect(http.StatusSeeOther, "/profile")
}
