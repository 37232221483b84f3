package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/library/internal/audit"
	"github.com/mrlokans/library/internal/auth"
	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database"
	auditrepo "github.com/mrlokans/library/internal/database/audit"
	"github.com/mrlokans/library/internal/directory"
	"github.com/mrlokans/library/internal/entities"
	"github.com/mrlokans/library/internal/fees"
)

const testPassword = "correct-horse-battery"

var testToday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type libraryEnv struct {
	t       *testing.T
	handler http.Handler
	db      *database.Database
	authSvc *auth.Service
	service *circulation.Service
	audit   *audit.Service
}

func setupLibrary(t *testing.T, templatesPath string) *libraryEnv {
	t.Helper()

	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)

	authCfg := config.Auth{
		SessionLifetime:  time.Hour,
		BcryptCost:       4,
		MaxLoginAttempts: 5,
		RateLimitWindow:  time.Minute,
		LockoutDuration:  time.Minute,
	}
	authSvc := auth.NewService(db.DB, authCfg)
	sm, err := auth.NewSessionManager(nil, authCfg, config.Sessions{Store: config.SessionStoreMemory})
	require.NoError(t, err)

	clock := circulation.FixedClock(testToday)
	auditSvc := audit.NewService(auditrepo.NewRepository(db.DB), audit.WithSynchronousWrites())
	service := circulation.NewService(db.DB, clock, circulation.DefaultLoanDays, circulation.WithAuditLogger(auditSvc))

	router, stop, err := NewRouter(RouterConfig{
		Database:       db,
		Circulation:    service,
		Fees:           fees.NewAccruer(db.DB, clock, fees.DefaultPolicy(), auditSvc),
		Directory:      directory.New(sqlDB, db.Driver()),
		Audit:          auditSvc,
		AuthService:    authSvc,
		SessionManager: sm,
		AuthConfig:     authCfg,
		TemplatesPath:  templatesPath,
		Version:        "test",
	})
	require.NoError(t, err)
	t.Cleanup(stop)

	return &libraryEnv{t: t, handler: router, db: db, authSvc: authSvc, service: service, audit: auditSvc}
}

func (e *libraryEnv) createUser(username string, role entities.UserRole) *entities.User {
	e.t.Helper()
	user, err := e.authSvc.CreateUser(username, username+"@example.com", testPassword, role)
	require.NoError(e.t, err)
	return user
}

func (e *libraryEnv) addBook(name, author string) *entities.Book {
	e.t.Helper()
	book, err := e.service.AddBook(context.Background(), circulation.SystemActor, name, author)
	require.NoError(e.t, err)
	return book
}

// login returns the session cookie for username.
func (e *libraryEnv) login(username string) *http.Cookie {
	e.t.Helper()
	rr := e.post("/api/login", url.Values{"username": {username}, "password": {testPassword}})
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	e.t.Fatal("no session cookie after login")
	return nil
}

func (e *libraryEnv) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies)
}

func (e *libraryEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookies)
}

func (e *libraryEnv) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestRouter_ReservationLifecycle(t *testing.T) {
	env := setupLibrary(t, "")
	member := env.createUser("member", entities.UserRoleMember)
	book := env.addBook("Dune", "Frank Herbert")
	cookie := env.login("member")

	bookPath := "/api/books/" + uintStr(book.ID)

	rr := env.post(bookPath+"/reserve", url.Values{"user_date": {"2025-03-10"}, "name": {"dune"}}, cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "/books?name=dune", decodeBody(t, rr)["redirect"])

	rr = env.post(bookPath+"/reserve", url.Values{"user_date": {"2025-03-10"}}, cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, circulation.ErrReservationExists.Error(), decodeBody(t, rr)["error"])

	rr = env.get("/api/", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	home := decodeBody(t, rr)
	page := home["reservations"].(map[string]any)
	items := page["items"].([]any)
	require.Len(t, items, 1)
	resID := uintStr(uint(items[0].(map[string]any)["id"].(float64)))
	assert.Equal(t, "0.00", home["balance"])

	rr = env.post(bookPath+"/pickup/"+resID, nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "picked up successfully", decodeBody(t, rr)["message"])

	// The visit after pickup accrues one charge per day until the due date, inclusive.
	rr = env.get("/api/", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0.31", decodeBody(t, rr)["balance"])

	rr = env.post(bookPath+"/return/"+resID, nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "returned successfully", decodeBody(t, rr)["message"])

	var stored entities.Book
	require.NoError(t, env.db.DB.First(&stored, book.ID).Error)
	assert.Equal(t, entities.BookStatusAvailable, stored.Status)
	assert.Equal(t, 0, stored.ReservationCount)

	events, err := env.audit.Events(auditrepo.Filter{UserID: member.ID, EventType: entities.AuditEventCirculation}, "1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, events.Items)
	assert.NotEmpty(t, events.Items[0].RequestID)
}

func TestRouter_CancelReservation(t *testing.T) {
	env := setupLibrary(t, "")
	env.createUser("member", entities.UserRoleMember)
	env.createUser("other", entities.UserRoleMember)
	book := env.addBook("Dune", "Frank Herbert")

	owner := env.login("member")
	res, err := env.service.Reserve(context.Background(), circulation.ActorFor(mustUser(t, env, "member")), book.ID, "2025-03-12")
	require.NoError(t, err)

	rr := env.post("/api/reservations/"+uintStr(res.ID)+"/cancel", nil, env.login("other"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.post("/api/reservations/"+uintStr(res.ID)+"/cancel", nil, owner)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "/", decodeBody(t, rr)["redirect"])

	rr = env.post("/api/reservations/"+uintStr(res.ID)+"/cancel", nil, owner)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_CatalogFilterAndPagination(t *testing.T) {
	env := setupLibrary(t, "")
	env.createUser("member", entities.UserRoleMember)
	for _, name := range []string{"Go in Action", "Learning Go", "Dune", "Go Programming", "Concurrency in Go", "Going Postal", "Emma", "Gone Girl"} {
		env.addBook(name, "Someone")
	}
	cookie := env.login("member")

	rr := env.get("/api/books?name=GO", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeBody(t, rr)["books"].(map[string]any)
	assert.EqualValues(t, 6, page["total"])
	assert.Len(t, page["items"], 6)

	rr = env.get("/api/books?page=2", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	page = decodeBody(t, rr)["books"].(map[string]any)
	assert.EqualValues(t, 2, page["page"])
	assert.Len(t, page["items"], 2)

	rr = env.get("/api/books?page=bogus", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	page = decodeBody(t, rr)["books"].(map[string]any)
	assert.EqualValues(t, 1, page["page"])

	rr = env.get("/api/books?status=checked_out", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	page = decodeBody(t, rr)["books"].(map[string]any)
	assert.EqualValues(t, 0, page["total"])
}

func TestRouter_AdminActions(t *testing.T) {
	env := setupLibrary(t, "")
	env.createUser("admin", entities.UserRoleAdmin)
	member := env.createUser("member", entities.UserRoleMember)
	admin := env.login("admin")
	memberCookie := env.login("member")

	rr := env.post("/api/books", url.Values{"name": {"Emma"}, "author": {"Jane Austen"}}, memberCookie)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, circulation.ErrNotAdmin.Error(), decodeBody(t, rr)["error"])

	rr = env.post("/api/books", url.Values{"name": {"Emma"}, "author": {"Jane Austen"}}, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "book added", decodeBody(t, rr)["message"])

	var book entities.Book
	require.NoError(t, env.db.DB.Where("name = ?", "Emma").First(&book).Error)
	bookPath := "/api/books/" + uintStr(book.ID)

	rr = env.post(bookPath+"/status", url.Values{"status": {"lost"}}, admin)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "select a valid option", decodeBody(t, rr)["error"])

	rr = env.post(bookPath+"/status", url.Values{"status": {"checked_out"}}, admin)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.get(bookPath+"/history", admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decodeBody(t, rr)["events"])

	rr = env.get(bookPath+"/history", memberCookie)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.post(bookPath+"/delete", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "book 'Emma' by 'Jane Austen' deleted", decodeBody(t, rr)["message"])

	rr = env.get("/api/users", memberCookie)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.get("/api/users", admin)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.EqualValues(t, 2, body["totals"].(map[string]any)["users"])

	rr = env.post("/api/users/"+uintStr(member.ID)+"/delete", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user 'member' deleted", decodeBody(t, rr)["message"])

	rr = env.get("/api/audit?type=catalog", admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decodeBody(t, rr)["events"])
}

func TestRouter_NotFoundAndAnonymous(t *testing.T) {
	env := setupLibrary(t, "")
	env.createUser("member", entities.UserRoleMember)
	cookie := env.login("member")

	rr := env.post("/api/books/999/reserve", url.Values{"user_date": {"2025-03-10"}}, cookie)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.post("/api/books/abc/reserve", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.get("/api/books")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.get("/books")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "/login")

	rr = env.get("/health")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_MalformedReserveBody(t *testing.T) {
	env := setupLibrary(t, "")
	env.createUser("member", entities.UserRoleMember)
	book := env.addBook("Dune", "Frank Herbert")
	cookie := env.login("member")

	broken := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"user_date":`))
		req.Header.Set("Content-Type", "application/json")
		return env.do(req, []*http.Cookie{cookie})
	}

	rr := broken("/api/books/" + uintStr(book.ID) + "/reserve")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "malformed request body", decodeBody(t, rr)["error"])

	rr = broken("/books/" + uintStr(book.ID) + "/reserve")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/books", rr.Header().Get("Location"))

	var count int64
	require.NoError(t, env.db.DB.Model(&entities.Reservation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRouter_RequestIDHeader(t *testing.T) {
	env := setupLibrary(t, "")

	rr := env.get("/ping")
	assert.Len(t, rr.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "6f1c2a7e-2f0b-4d8e-9a57-3c1d0e5b7a21")
	rr = env.do(req, nil)
	assert.Equal(t, "6f1c2a7e-2f0b-4d8e-9a57-3c1d0e5b7a21", rr.Header().Get(RequestIDHeader))
}

func TestRouter_BrowserFlashMessages(t *testing.T) {
	dir := t.TempDir()
	page := `{{with .flash}}<p class="{{.Kind}}">{{.Message}}</p>{{end}}`
	for _, name := range []string{"home.html", "books.html"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(page), 0o644))
	}

	env := setupLibrary(t, dir)
	env.createUser("member", entities.UserRoleMember)
	book := env.addBook("Dune", "Frank Herbert")
	cookie := env.login("member")

	rr := env.post("/books/"+uintStr(book.ID)+"/reserve",
		url.Values{"user_date": {"2025-03-01"}, "name": {"dune"}, "status": {"available"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/books?name=dune&status=available", rr.Header().Get("Location"))

	rr = env.get("/books?name=dune&status=available", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), circulation.ErrPastDate.Error())
	assert.Contains(t, rr.Body.String(), `class="error"`)

	// The flash is shown once.
	rr = env.get("/books", cookie)
	assert.NotContains(t, rr.Body.String(), circulation.ErrPastDate.Error())
}

func mustUser(t *testing.T, env *libraryEnv, username string) *entities.User {
	t.Helper()
	var user entities.User
	require.NoError(t, env.db.DB.Where("username = ?", username).First(&user).Error)
	return &user
}

func uintStr(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestRouter_ShippedTemplatesRender(t *testing.T) {
	env := setupLibrary(t, filepath.Join("..", "..", "templates"))
	admin := env.createUser("admin", entities.UserRoleAdmin)
	book := env.addBook("Dune", "Frank Herbert")
	_, err := env.service.Reserve(context.Background(), circulation.ActorFor(admin), book.ID, "2025-03-10")
	require.NoError(t, err)
	cookie := env.login("admin")

	for _, path := range []string{"/", "/books?name=du", "/users", "/audit", "/profile", "/books/" + uintStr(book.ID) + "/history"} {
		t.Run(path, func(t *testing.T) {
			rr := env.get(path, cookie)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Contains(t, rr.Body.String(), "</html>")
		})
	}

	rr := env.get("/login")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "</html>")
}
