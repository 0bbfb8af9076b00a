// Package analytics records page-view events for signed-in accounts.
package analytics

import (
	"context"
	"database/sql"
	"time"

	"communityshare.org/internal/ids"
)

// PageView is one navigation event reported by the client.
type PageView struct {
	ID       string
	UserID   int
	ViewedAt time.Time
	NextPath string
	PrevPath string
}

// Store persists page views in PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures Store behavior.
type Option func(*Store)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewStore constructs a Store over an explicit database handle.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores a page view for the user and returns it with id and timestamp
// assigned.
func (s *Store) Record(ctx context.Context, userID int, nextPath, prevPath string) (*PageView, error) {
	pv := &PageView{
		ID:       ids.New(),
		UserID:   userID,
		ViewedAt: s.now().UTC(),
		NextPath: nextPath,
		PrevPath: prevPath,
	}
	_, err := s.db.ExecContext(ctx,
		`insert into page_views(id, user_id, viewed_at, next_path, prev_path)
		 values($1,$2,$3,$4,$5)`,
		pv.ID, pv.UserID, pv.ViewedAt, pv.NextPath, pv.PrevPath,
	)
	if err != nil {
		return nil, err
	}
	return pv, nil
}
