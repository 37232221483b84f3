// Package audit records who did what to the catalog, the reservation ledger
// and user accounts.
package audit

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/mrlokans/library/internal/database/audit"
	"github.com/mrlokans/library/internal/entities"
	"github.com/mrlokans/library/internal/pagination"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
	sync bool
}

// Option configures a Service.
type Option func(*Service)

// WithSynchronousWrites makes every Log* call write before returning.
func WithSynchronousWrites() Option {
	return func(s *Service) { s.sync = true }
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log writes an event and returns the storage error, if any.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.Append(event)
}

// record writes an event without making the caller wait, unless the
// service was built with WithSynchronousWrites. Failures are only logged.
func (s *Service) record(event *entities.AuditEvent) {
	write := func() {
		if err := s.repo.Append(event); err != nil {
			log.Printf("[AUDIT] Failed to record %s/%s: %v", event.EventType, event.Action, err)
		}
	}
	if s.sync {
		write()
		return
	}
	go write()
}

// LogCirculation records a reserve, pickup, return or cancel attempt on a book.
func (s *Service) LogCirculation(ctx context.Context, userID uint, action string, bookID uint, description string, err error) {
	event := newEvent(ctx, userID, entities.AuditEventCirculation, action, description, err)
	event.EntityType = "book"
	event.EntityID = &bookID
	s.record(event)
}

// LogCatalog records an administrative change to a book.
func (s *Service) LogCatalog(ctx context.Context, userID uint, action string, bookID uint, description string) {
	event := newEvent(ctx, userID, entities.AuditEventCatalog, action, description, nil)
	event.EntityType = "book"
	event.EntityID = &bookID
	s.record(event)
}

// LogAccount records a change to a user account.
func (s *Service) LogAccount(ctx context.Context, userID uint, action string, targetUserID uint, description string) {
	event := newEvent(ctx, userID, entities.AuditEventAccount, action, description, nil)
	event.EntityType = "user"
	event.EntityID = &targetUserID
	s.record(event)
}

// LogFee records a fee accrual against a user's balance.
func (s *Service) LogFee(ctx context.Context, userID uint, charges int, amount decimal.Decimal) {
	event := newEvent(ctx, userID, entities.AuditEventFee, "accrue", "Accrued "+amount.String(), nil)
	event.EntityType = "user"
	event.EntityID = &userID
	event.Metadata = encodeMetadata(map[string]any{
		"charges": charges,
		"amount":  amount.String(),
	})
	s.record(event)
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(ctx context.Context, userID uint, action string, success bool) {
	event := newEvent(ctx, userID, entities.AuditEventAuth, action, "", nil)
	if !success {
		event.Status = entities.AuditStatusFailed
	}
	s.record(event)
}

// LogMaintenance records the outcome of a background maintenance run.
func (s *Service) LogMaintenance(action, description string, metadata map[string]any, err error) {
	event := newEvent(context.Background(), 0, entities.AuditEventMaintenance, action, description, err)
	event.Metadata = encodeMetadata(metadata)
	s.record(event)
}

// Events lists one page of events matching filter.
func (s *Service) Events(filter audit.Filter, rawPage string, size int) (pagination.Page[entities.AuditEvent], error) {
	return s.repo.Find(filter, rawPage, size)
}

// BookHistory returns every event recorded against a book.
func (s *Service) BookHistory(bookID uint) ([]entities.AuditEvent, error) {
	return s.repo.Trail("book", bookID)
}

// DeleteOldEvents removes events older than retention.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	return s.repo.PruneBefore(time.Now().Add(-retention))
}

// DecodeMetadata unpacks the JSON metadata stored on an event.
func DecodeMetadata(event entities.AuditEvent) (map[string]any, error) {
	if event.Metadata == "" {
		return map[string]any{}, nil
	}
	var md map[string]any
	if err := json.UnmarshalFromString(event.Metadata, &md); err != nil {
		return nil, err
	}
	return md, nil
}

func newEvent(ctx context.Context, userID uint, eventType entities.AuditEventType, action, description string, err error) *entities.AuditEvent {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   eventType,
		Action:      action,
		Description: clip(description, maxTextLen),
		RequestID:   RequestID(ctx),
		IPAddress:   ClientIP(ctx),
		Status:      entities.AuditStatusSuccess,
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = clip(err.Error(), maxTextLen)
	}
	return event
}

func encodeMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	encoded, err := json.MarshalToString(metadata)
	if err != nil {
		log.Printf("[AUDIT] Failed to encode metadata: %v", err)
		return ""
	}
	return encoded
}

const maxTextLen = 500

// clip keeps s within maxLen bytes without splitting a UTF-8 sequence.
func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - len("...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
