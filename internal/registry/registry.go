// Package registry maintains the durable mapping from conversation
// contexts to numbered background sessions.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akd-tools/sdd-bridge/internal/store"
)

// ErrNotFound is returned by Lookup for an unmapped context.
var ErrNotFound = errors.New("no session for context")

// Entry is one context-to-session mapping.
type Entry struct {
	ContextID  string `json:"context_id"`
	SessionNum int    `json:"session_num"`
	CreatedAt  int64  `json:"created_at"`
}

// Registry allocates and looks up session numbers. Session numbers are
// unique across live entries; the lowest unused positive integer is
// handed out on allocation. Every mutation is committed before the call
// returns, so a restart never observes a number that was handed out but
// not recorded.
type Registry struct {
	ds     *store.Store
	logger zerolog.Logger

	// mu serializes the read-compute-write of the lowest free number.
	mu sync.Mutex
}

// New creates a registry backed by the given store.
func New(ds *store.Store, logger zerolog.Logger) *Registry {
	return &Registry{
		ds:     ds,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

func (r *Registry) db() (*sql.DB, error) {
	db := r.ds.DB()
	if db == nil {
		return nil, fmt.Errorf("registry store is closed")
	}
	return db, nil
}

// Allocate returns the session number mapped to contextID, creating a
// new mapping with the smallest unused number if none exists. The call
// fails without handing out a number if the mapping cannot be persisted.
func (r *Registry) Allocate(contextID string) (int, error) {
	if contextID == "" {
		return 0, fmt.Errorf("context id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := r.db()
	if err != nil {
		return 0, err
	}

	var num int
	err = db.QueryRow(`SELECT session_num FROM sessions WHERE context_id = ?`, contextID).Scan(&num)
	if err == nil {
		return num, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up session: %w", err)
	}

	num, err = r.lowestFree(db)
	if err != nil {
		return 0, err
	}

	_, err = db.Exec(
		`INSERT INTO sessions (context_id, session_num, created_at) VALUES (?, ?, ?)`,
		contextID, num, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to persist session %d: %w", num, err)
	}

	r.logger.Info().Str("context", contextID).Int("session", num).Msg("session allocated")
	return num, nil
}

// lowestFree computes the smallest positive integer not currently in use.
// Callers must hold r.mu.
func (r *Registry) lowestFree(db *sql.DB) (int, error) {
	rows, err := db.Query(`SELECT session_num FROM sessions ORDER BY session_num ASC`)
	if err != nil {
		return 0, fmt.Errorf("failed to list session numbers: %w", err)
	}
	defer rows.Close()

	next := 1
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to scan session number: %w", err)
		}
		if n > next {
			break
		}
		if n == next {
			next++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate session numbers: %w", err)
	}
	return next, nil
}

// Lookup returns the session number for contextID, or ErrNotFound.
func (r *Registry) Lookup(contextID string) (int, error) {
	db, err := r.db()
	if err != nil {
		return 0, err
	}
	var num int
	err = db.QueryRow(`SELECT session_num FROM sessions WHERE context_id = ?`, contextID).Scan(&num)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up session: %w", err)
	}
	return num, nil
}

// List returns all entries ordered by session number.
func (r *Registry) List() ([]Entry, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT context_id, session_num, created_at FROM sessions ORDER BY session_num ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ContextID, &e.SessionNum, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Remove deletes the mapping for contextID. Removing an unmapped context
// is not an error; the bool reports whether an entry was deleted. The
// freed number becomes available for future allocations.
func (r *Registry) Remove(contextID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := r.db()
	if err != nil {
		return false, err
	}
	res, err := db.Exec(`DELETE FROM sessions WHERE context_id = ?`, contextID)
	if err != nil {
		return false, fmt.Errorf("failed to remove session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.logger.Info().Str("context", contextID).Msg("session removed")
	}
	return n > 0, nil
}
