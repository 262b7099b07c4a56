package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/web3devz/polytrader/internal/models"
)

// Run statuses. A paused run is parked at the suspension boundary; the
// resume claim flips it to running exactly once.
const (
	StatusRunning = "running"
	StatusPaused  = "paused"
	StatusDone    = "done"
)

var (
	// ErrRunNotFound indicates no checkpoint exists for the run ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrNotPaused indicates a resume was attempted on a run that is not
	// parked at the suspension boundary (already resumed or finished).
	ErrNotPaused = errors.New("run is not paused")
)

// CheckpointRepo persists workflow state snapshots keyed by run ID.
type CheckpointRepo struct {
	DB *sql.DB
}

func NewCheckpointRepo(db *sql.DB) *CheckpointRepo {
	return &CheckpointRepo{DB: db}
}

// Save upserts the run's checkpoint with the given status.
func (r *CheckpointRepo) Save(ctx context.Context, state *models.WorkflowState, status string) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	now := time.Now().Unix()
	const q = `INSERT INTO runs (run_id, market_id, node, status, state_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
	node = excluded.node,
	status = excluded.status,
	state_json = excluded.state_json,
	updated_at = excluded.updated_at`

	_, err = r.DB.ExecContext(ctx, q,
		state.RunID, state.MarketID, state.Node, status, string(stateJSON), now, now)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the checkpointed state and status for a run.
func (r *CheckpointRepo) Load(ctx context.Context, runID string) (*models.WorkflowState, string, error) {
	const q = `SELECT state_json, status FROM runs WHERE run_id = ?`

	var stateJSON, status string
	err := r.DB.QueryRowContext(ctx, q, runID).Scan(&stateJSON, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrRunNotFound
		}
		return nil, "", fmt.Errorf("load checkpoint: %w", err)
	}

	var state models.WorkflowState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, "", fmt.Errorf("decode state: %w", err)
	}
	return &state, status, nil
}

// ClaimResume atomically transitions a paused run back to running and
// returns its state. The conditional UPDATE guarantees at-most-once resume:
// a second claim for the same pause finds the run no longer paused and
// fails with ErrNotPaused.
func (r *CheckpointRepo) ClaimResume(ctx context.Context, runID string) (*models.WorkflowState, error) {
	const q = `UPDATE runs SET status = ?, updated_at = ? WHERE run_id = ? AND status = ?`

	res, err := r.DB.ExecContext(ctx, q, StatusRunning, time.Now().Unix(), runID, StatusPaused)
	if err != nil {
		return nil, fmt.Errorf("claim resume: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim resume: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing run from an already-claimed one.
		if _, _, loadErr := r.Load(ctx, runID); errors.Is(loadErr, ErrRunNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, ErrNotPaused
	}

	state, _, err := r.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SetConfirmation writes the external confirmation signal into a paused
// run's persisted state, for external-update mode where a separate channel
// answers the pause before the controller is re-invoked.
func (r *CheckpointRepo) SetConfirmation(ctx context.Context, runID string, confirmed bool) error {
	state, status, err := r.Load(ctx, runID)
	if err != nil {
		return err
	}
	if status != StatusPaused {
		return ErrNotPaused
	}

	state.UserConfirmation = &confirmed
	return r.Save(ctx, state, StatusPaused)
}

// AppendEvent records one controller transition for auditability.
func (r *CheckpointRepo) AppendEvent(ctx context.Context, runID, node, eventType, detail string) error {
	const q = `INSERT INTO run_events (run_id, node, event_type, detail, created_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := r.DB.ExecContext(ctx, q, runID, node, eventType, detail, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
