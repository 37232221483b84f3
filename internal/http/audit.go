package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/library/internal/audit"
	auditrepo "github.com/mrlokans/library/internal/database/audit"
	"github.com/mrlokans/library/internal/entities"
)

const auditPageSize = 25

type AuditController struct {
	*views
	auditService *audit.Service
}

func NewAuditController(v *views, auditService *audit.Service) *AuditController {
	return &AuditController{
		views:        v,
		auditService: auditService,
	}
}

// List renders the library-wide audit log (administrators only).
// GET /audit?type=&user_id=&page=&limit=
// Out-of-range pages resolve like every other listing.
func (ac *AuditController) List(c *gin.Context) {
	if !ac.requireAdmin(c) {
		return
	}

	if ac.auditService == nil {
		respondNotFound(c, "audit log")
		return
	}

	size, err := strconv.Atoi(c.Query("limit"))
	if err != nil || size < 1 || size > 100 {
		size = auditPageSize
	}
	userID, _ := strconv.ParseUint(c.Query("user_id"), 10, 32)
	eventType := c.Query("type")

	page, err := ac.auditService.Events(auditrepo.Filter{
		UserID:    uint(userID),
		EventType: entities.AuditEventType(eventType),
	}, c.Query("page"), size)
	if err != nil {
		respondInternalError(c, err, "load audit events")
		return
	}

	ac.render(c, http.StatusOK, "audit.html", gin.H{
		"events":       page.Items,
		"page":         page.Number,
		"limit":        size,
		"total_pages":  page.NumPages,
		"total_events": page.Total,
		"event_type":   eventType,
		"event_types":  eventTypes(),
	})
}

type EventTypeOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func eventTypes() []EventTypeOption {
	return []EventTypeOption{
		{Value: "", Label: "All Events"},
		{Value: string(entities.AuditEventCirculation), Label: "Circulation"},
		{Value: string(entities.AuditEventCatalog), Label: "Catalog"},
		{Value: string(entities.AuditEventAccount), Label: "Accounts"},
		{Value: string(entities.AuditEventFee), Label: "Fees"},
		{Value: string(entities.AuditEventAuth), Label: "Authentication"},
		{Value: string(entities.AuditEventMaintenance), Label: "Maintenance"},
	}
}
