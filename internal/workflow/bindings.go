package workflow

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/akd-tools/sdd-bridge/internal/store"
)

// ErrNotBound is returned when a conversation context has no project binding.
var ErrNotBound = errors.New("context is not bound to a project")

// Binding ties a conversation context to a project at a stage. A
// project accrues one binding per stage it has entered; the newest one
// marks its current stage.
type Binding struct {
	ContextID string `json:"context_id"`
	Project   string `json:"project"`
	Stage     Stage  `json:"stage"`
	CreatedAt int64  `json:"created_at"`
}

// Bindings is the durable thread-to-project mapping.
type Bindings struct {
	ds     *store.Store
	logger zerolog.Logger
}

// NewBindings creates the bindings store.
func NewBindings(ds *store.Store, logger zerolog.Logger) *Bindings {
	return &Bindings{
		ds:     ds,
		logger: logger.With().Str("component", "bindings").Logger(),
	}
}

func (b *Bindings) db() (*sql.DB, error) {
	db := b.ds.DB()
	if db == nil {
		return nil, fmt.Errorf("bindings store is closed")
	}
	return db, nil
}

// Bind records that contextID serves project at stage. Committing this
// row is what advances the project; it must be the final step of a
// transition.
func (b *Bindings) Bind(contextID, project string, stage Stage) error {
	db, err := b.db()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO bindings (context_id, project, stage, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(context_id) DO UPDATE SET project = excluded.project, stage = excluded.stage, created_at = excluded.created_at`,
		contextID, project, string(stage), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to bind context: %w", err)
	}
	b.logger.Info().Str("context", contextID).Str("project", project).Str("stage", string(stage)).Msg("context bound")
	return nil
}

// Lookup returns the binding for contextID, or ErrNotBound.
func (b *Bindings) Lookup(contextID string) (Binding, error) {
	db, err := b.db()
	if err != nil {
		return Binding{}, err
	}
	var bd Binding
	var stage string
	err = db.QueryRow(
		`SELECT context_id, project, stage, created_at FROM bindings WHERE context_id = ?`, contextID,
	).Scan(&bd.ContextID, &bd.Project, &stage, &bd.CreatedAt)
	if err == sql.ErrNoRows {
		return Binding{}, ErrNotBound
	}
	if err != nil {
		return Binding{}, fmt.Errorf("failed to look up binding: %w", err)
	}
	bd.Stage = Stage(stage)
	return bd, nil
}

// CurrentStage returns the stage of the project's newest binding, or
// ErrNotBound for an unknown project.
func (b *Bindings) CurrentStage(project string) (Stage, error) {
	db, err := b.db()
	if err != nil {
		return "", err
	}
	var stage string
	err = db.QueryRow(
		`SELECT stage FROM bindings WHERE project = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, project,
	).Scan(&stage)
	if err == sql.ErrNoRows {
		return "", ErrNotBound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve current stage: %w", err)
	}
	return Stage(stage), nil
}

// Projects returns each known project with its current stage.
func (b *Bindings) Projects() (map[string]Stage, error) {
	db, err := b.db()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT project, stage FROM bindings ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	// newest binding per project wins
	projects := make(map[string]Stage)
	for rows.Next() {
		var project, stage string
		if err := rows.Scan(&project, &stage); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects[project] = Stage(stage)
	}
	return projects, rows.Err()
}
