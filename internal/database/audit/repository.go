// Package audit stores and queries the audit trail.
package audit

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/entities"
	"github.com/mrlokans/library/internal/pagination"
)

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	UserID     uint
	EventType  entities.AuditEventType
	EntityType string
	EntityID   uint
}

func (f Filter) scope(q *gorm.DB) *gorm.DB {
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	return q
}

// Repository is the append-mostly store behind the audit service.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Append stores an event, stamping it with the current time if unset.
func (r *Repository) Append(event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.db.Create(event).Error
}

// Find returns one page of matching events, newest first. rawPage is
// resolved the same way as every other listing.
func (r *Repository) Find(f Filter, rawPage string, size int) (pagination.Page[entities.AuditEvent], error) {
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	var total int64
	if err := f.scope(r.db.Model(&entities.AuditEvent{})).Count(&total).Error; err != nil {
		return pagination.Page[entities.AuditEvent]{}, err
	}

	number, offset := pagination.Resolve(rawPage, total, size)

	var events []entities.AuditEvent
	err := f.scope(r.db.Model(&entities.AuditEvent{})).
		Order("created_at DESC, id DESC").
		Limit(size).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return pagination.Page[entities.AuditEvent]{}, err
	}
	return pagination.New(events, number, size, total), nil
}

// Trail returns every event recorded against one entity, newest first.
func (r *Repository) Trail(entityType string, entityID uint) ([]entities.AuditEvent, error) {
	var events []entities.AuditEvent
	err := Filter{EntityType: entityType, EntityID: entityID}.
		scope(r.db).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	return events, err
}

// Get loads a single event.
func (r *Repository) Get(id uint) (*entities.AuditEvent, error) {
	var event entities.AuditEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// PruneBefore deletes events created before cutoff and reports how many went.
func (r *Repository) PruneBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&entities.AuditEvent{})
	return result.RowsAffected, result.Error
}
