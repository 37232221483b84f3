package http

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/database/reservations"
	"github.com/mrlokans/library/internal/database/users"
	"github.com/mrlokans/library/internal/fees"
)

// HomeController serves the landing page: the actor's reservations and
// balance. Every visit accrues fees first.
type HomeController struct {
	*views
	db       *gorm.DB
	service  *circulation.Service
	accruer  *fees.Accruer
	pageSize int
}

func NewHomeController(v *views, db *gorm.DB, service *circulation.Service, accruer *fees.Accruer, pageSize int) *HomeController {
	return &HomeController{
		views:    v,
		db:       db,
		service:  service,
		accruer:  accruer,
		pageSize: pageSize,
	}
}

// Index handles GET /
func (hc *HomeController) Index(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorFrom(c)

	if hc.accruer != nil && !actor.Anonymous() {
		if _, err := hc.accruer.Accrue(ctx, actor); err != nil {
			log.Printf("[FEES] accrual for user %d failed: %v", actor.UserID, err)
		}
	}

	db := hc.db.WithContext(ctx)
	page, err := reservations.NewRepository(db).PageForUser(actor.UserID, c.Query("page"), hc.pageSize)
	if err != nil {
		respondInternalError(c, err, "list reservations")
		return
	}

	data := gin.H{
		"reservations": page,
		"today":        hc.service.Today().Format(circulation.DateLayout),
		"loan_days":    hc.service.LoanDays(),
	}
	if !actor.Anonymous() {
		user, err := users.NewRepository(db).GetUserByID(actor.UserID)
		if err != nil {
			respondInternalError(c, err, "load user")
			return
		}
		data["balance"] = user.Balance.StringFixed(2)
	}

	hc.render(c, http.StatusOK, "home.html", data)
}
