package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/audit"
	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/database/books"
	"github.com/mrlokans/library/internal/entities"
)

// BooksController serves the catalog and its administration.
type BooksController struct {
	*views
	db       *gorm.DB
	service  *circulation.Service
	audit    *audit.Service
	pageSize int
}

func NewBooksController(v *views, db *gorm.DB, service *circulation.Service, auditService *audit.Service, pageSize int) *BooksController {
	return &BooksController{
		views:    v,
		db:       db,
		service:  service,
		audit:    auditService,
		pageSize: pageSize,
	}
}

// List handles GET /books?name=&status=&page=
func (bc *BooksController) List(c *gin.Context) {
	var filter books.Filter
	_ = c.ShouldBindQuery(&filter)

	page, err := books.NewRepository(bc.db.WithContext(c.Request.Context())).List(filter, c.Query("page"), bc.pageSize)
	if err != nil {
		respondInternalError(c, err, "list books")
		return
	}

	bc.render(c, http.StatusOK, "books.html", gin.H{
		"books":    page,
		"filter":   filter,
		"statuses": entities.BookStatuses,
		"today":    bc.service.Today().Format(circulation.DateLayout),
	})
}

type addBookForm struct {
	Name   string `form:"name" json:"name"`
	Author string `form:"author" json:"author"`
}

// Add handles POST /books
func (bc *BooksController) Add(c *gin.Context) {
	var form addBookForm
	if !bc.bindForm(c, &form, "/books") {
		return
	}

	_, err := bc.service.AddBook(c.Request.Context(), actorFrom(c), form.Name, form.Author)
	if err != nil {
		bc.respondAction(c, err, "", "/books")
		return
	}
	bc.respondAction(c, nil, "book added", "/books")
}

type statusForm struct {
	Status string `form:"status" json:"status"`
}

// SetStatus handles POST /books/:id/status
func (bc *BooksController) SetStatus(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var form statusForm
	if !bc.bindForm(c, &form, "/books") {
		return
	}

	book, err := bc.service.SetStatus(c.Request.Context(), actorFrom(c), bookID, entities.BookStatus(form.Status))
	if err != nil {
		bc.respondAction(c, err, "", "/books")
		return
	}
	bc.respondAction(c, nil, fmt.Sprintf("status of '%s' set to %s", book.Name, book.Status), "/books")
}

// Delete handles POST /books/:id/delete
func (bc *BooksController) Delete(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := bc.service.DeleteBook(c.Request.Context(), actorFrom(c), bookID)
	if err != nil {
		bc.respondAction(c, err, "", "/books")
		return
	}
	bc.respondAction(c, nil, fmt.Sprintf("book '%s' by '%s' deleted", book.Name, book.Author), "/books")
}

// History handles GET /books/:id/history (administrators only).
func (bc *BooksController) History(c *gin.Context) {
	if !bc.requireAdmin(c) {
		return
	}
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if bc.audit == nil {
		respondNotFound(c, "book history")
		return
	}
	events, err := bc.audit.BookHistory(bookID)
	if err != nil {
		respondInternalError(c, err, "book history")
		return
	}

	bc.render(c, http.StatusOK, "history.html", gin.H{
		"book_id": bookID,
		"events":  events,
	})
}
