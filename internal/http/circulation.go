package http

import (
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/library/internal/circulation"
)

// CirculationController exposes the reservation lifecycle.
type CirculationController struct {
	*views
	service *circulation.Service
}

func NewCirculationController(v *views, service *circulation.Service) *CirculationController {
	return &CirculationController{views: v, service: service}
}

// reserveForm carries the pickup date plus the catalog filter the user came from.
type reserveForm struct {
	Date   string `form:"user_date" json:"user_date"`
	Name   string `form:"name" json:"name"`
	Status string `form:"status" json:"status"`
}

// Reserve handles POST /books/:id/reserve
func (cc *CirculationController) Reserve(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var form reserveForm
	if !cc.bindForm(c, &form, "/books") {
		return
	}

	_, err := cc.service.Reserve(c.Request.Context(), actorFrom(c), bookID, form.Date)
	cc.respondAction(c, err, "", catalogURL(form.Name, form.Status))
}

// Pickup handles POST /books/:id/pickup/:reservation_id
func (cc *CirculationController) Pickup(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	reservationID, ok := parseIDParam(c, "reservation_id")
	if !ok {
		return
	}

	_, err := cc.service.Pickup(c.Request.Context(), actorFrom(c), bookID, reservationID)
	cc.respondAction(c, err, "picked up successfully", "/")
}

// Return handles POST /books/:id/return/:reservation_id
func (cc *CirculationController) Return(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	reservationID, ok := parseIDParam(c, "reservation_id")
	if !ok {
		return
	}

	err := cc.service.Return(c.Request.Context(), actorFrom(c), bookID, reservationID)
	cc.respondAction(c, err, "returned successfully", "/")
}

// Cancel handles POST /reservations/:id/cancel
func (cc *CirculationController) Cancel(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	_, err := cc.service.Cancel(c.Request.Context(), actorFrom(c), reservationID)
	cc.respondAction(c, err, "", "/")
}

// catalogURL rebuilds the catalog link for a filter, omitting empty values.
func catalogURL(name, status string) string {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if status != "" {
		q.Set("status", status)
	}
	if len(q) == 0 {
		return "/books"
	}
	return "/books?" + q.Encode()
}
