package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/library/internal/database"
	"github.com/mrlokans/library/internal/database/books"
	"github.com/mrlokans/library/internal/entities"
)

// HealthResponse is the body of GET /health. Catalog counts books per
// status and is omitted when the database cannot be read.
type HealthResponse struct {
	Status  string                        `json:"status"`
	Time    string                        `json:"time"`
	Version string                        `json:"version,omitempty"`
	Checks  map[string]string             `json:"checks"`
	Catalog map[entities.BookStatus]int64 `json:"catalog,omitempty"`
}

type HealthController struct {
	db      *database.Database
	version string
}

func NewHealthController(db *database.Database, version string) *HealthController {
	return &HealthController{db: db, version: version}
}

// Status handles GET /health. It answers 503 when the database is unreachable.
func (h *HealthController) Status(c *gin.Context) {
	health := HealthResponse{
		Status:  "healthy",
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  map[string]string{},
	}

	if h.db == nil {
		health.Checks["database"] = "not configured"
	} else if err := h.db.Ping(); err != nil {
		health.Status = "unhealthy"
		health.Checks["database"] = "error: " + err.Error()
	} else {
		health.Checks["database"] = "ok (" + h.db.Driver() + ")"
		health.Catalog, health.Checks["catalog"] = h.catalog(c)
	}

	code := http.StatusOK
	if health.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.IndentedJSON(code, health)
}

func (h *HealthController) catalog(c *gin.Context) (map[entities.BookStatus]int64, string) {
	counts, err := books.NewRepository(h.db.DB.WithContext(c.Request.Context())).CountByStatus()
	if err != nil {
		log.Printf("Health check could not count books: %v", err)
		return nil, "error"
	}
	return counts, "ok"
}
