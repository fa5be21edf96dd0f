// Package lifecycle provides the soft-delete state shared by roles and cross-tenant rules.
package lifecycle

import (
	"database/sql"
	"fmt"
	"time"
)

// Lifecycle tracks soft deletion of an entity
type Lifecycle struct {
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *int64     `json:"deleted_by,omitempty"`
}

// Active reports whether the entity has not been soft-deleted
func (l Lifecycle) Active() bool {
	return !l.IsDeleted
}

// SoftDelete marks the entity deleted. Deleting twice is an error so that
// the original deletion metadata is preserved.
func (l *Lifecycle) SoftDelete(by int64, at time.Time) error {
	if l.IsDeleted {
		return fmt.Errorf("already deleted")
	}
	at = at.UTC()
	l.IsDeleted = true
	l.DeletedAt = &at
	l.DeletedBy = &by
	return nil
}

// Restore clears the deletion state
func (l *Lifecycle) Restore() {
	l.IsDeleted = false
	l.DeletedAt = nil
	l.DeletedBy = nil
}

// Columns is the column list persisted for a Lifecycle, in Scan order
const Columns = "is_deleted, deleted_at, deleted_by"

// Scanned holds the nullable column values read from a row
type Scanned struct {
	IsDeleted bool
	DeletedAt sql.NullTime
	DeletedBy sql.NullInt64
}

// Dest returns the scan destinations matching Columns
func (s *Scanned) Dest() []interface{} {
	return []interface{}{&s.IsDeleted, &s.DeletedAt, &s.DeletedBy}
}

// Lifecycle converts the scanned values
func (s *Scanned) Lifecycle() Lifecycle {
	l := Lifecycle{IsDeleted: s.IsDeleted}
	if s.DeletedAt.Valid {
		t := s.DeletedAt.Time
		l.DeletedAt = &t
	}
	if s.DeletedBy.Valid {
		by := s.DeletedBy.Int64
		l.DeletedBy = &by
	}
	return l
}
