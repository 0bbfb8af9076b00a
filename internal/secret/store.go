package secret

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"communityshare.org/internal/obs"
)

// Store persists tokens in the secrets table. Expiry is evaluated lazily at
// lookup time; there is no background sweep.
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

// Issue creates and persists a token carrying the payload for the given
// duration.
func (s *Store) Issue(ctx context.Context, payload map[string]any, ttl time.Duration) (*Token, error) {
	info, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	key, err := MakeKey()
	if err != nil {
		return nil, err
	}
	tok := &Token{
		Key:        key,
		Info:       string(info),
		Expiration: s.now().UTC().Add(ttl),
	}
	_, err = s.db.ExecContext(ctx,
		`insert into secrets(key, info, expiration, used) values($1,$2,$3,false)`,
		tok.Key, tok.Info, tok.Expiration,
	)
	if err != nil {
		return nil, err
	}
	obs.CountToken("issued")
	return tok, nil
}

// Lookup returns the live token for the key, or nil when no row matches, the
// token was consumed, or it has expired. Absence is never an error.
func (s *Store) Lookup(ctx context.Context, key string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`select key, info, expiration, used from secrets
		 where key = $1 and used = false and expiration > $2`,
		key, s.now().UTC(),
	)
	var tok Token
	if err := row.Scan(&tok.Key, &tok.Info, &tok.Expiration, &tok.Used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	obs.CountToken("looked_up")
	return &tok, nil
}

// Consume atomically marks the token used and returns it. Two concurrent
// redemptions of the same key cannot both succeed: the mark-used happens in
// the same statement as the validity check.
func (s *Store) Consume(ctx context.Context, key string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`update secrets set used = true
		 where key = $1 and used = false and expiration > $2
		 returning key, info, expiration`,
		key, s.now().UTC(),
	)
	var tok Token
	if err := row.Scan(&tok.Key, &tok.Info, &tok.Expiration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tok.Used = true
	obs.CountToken("consumed")
	return &tok, nil
}
