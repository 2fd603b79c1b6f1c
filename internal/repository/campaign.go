package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/outreachlabs/formpilot/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// CampaignRepository persists batch jobs and their counters.
type CampaignRepository struct {
	db DB
}

// NewCampaignRepository binds a repository to a database handle.
func NewCampaignRepository(db DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign in the created state.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO campaigns (id, account_id, message, target_count, status)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.AccountID, c.Message, c.TargetCount, model.CampaignCreated)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// Get loads one campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, account_id, message, target_count, success_count, failure_count,
		       status, started_at, completed_at, created_at
		FROM campaigns WHERE id = $1`, id)

	var c model.Campaign
	err := row.Scan(&c.ID, &c.AccountID, &c.Message, &c.TargetCount,
		&c.SuccessCount, &c.FailureCount, &c.Status,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select campaign: %w", err)
	}
	return &c, nil
}

// MarkRunning transitions created -> running and stamps the start time. A
// campaign already in running state keeps its original start time, so an
// interrupted run can resume from a redelivered queue message. Terminal
// campaigns are left alone and reported as ErrNotFound.
func (r *CampaignRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET status = $2, started_at = coalesce(started_at, now())
		WHERE id = $1 AND status IN ($3, $2)`,
		id, model.CampaignRunning, model.CampaignCreated)
	if err != nil {
		return fmt.Errorf("mark campaign running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finalize moves a running campaign into a terminal state.
func (r *CampaignRepository) Finalize(ctx context.Context, id uuid.UUID, status model.CampaignStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot finalize campaign to non-terminal status %q", status)
	}
	_, err := r.db.Exec(ctx, `
		UPDATE campaigns SET status = $2, completed_at = now()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("finalize campaign: %w", err)
	}
	return nil
}

// IncrementSuccess bumps the success counter by one.
func (r *CampaignRepository) IncrementSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE campaigns SET success_count = success_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment success count: %w", err)
	}
	return nil
}

// IncrementFailure bumps the failure counter by one.
func (r *CampaignRepository) IncrementFailure(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE campaigns SET failure_count = failure_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment failure count: %w", err)
	}
	return nil
}

// DecrementFailures lowers the failure counter after failed rows were
// requeued for retry, keeping success + failure + pending equal to the
// target count.
func (r *CampaignRepository) DecrementFailures(ctx context.Context, id uuid.UUID, n int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET failure_count = greatest(failure_count - $2, 0)
		WHERE id = $1`, id, n)
	if err != nil {
		return fmt.Errorf("decrement failure count: %w", err)
	}
	return nil
}

// RequestStop raises the cooperative stop flag. The processor honors it at
// the next target boundary; the in-flight attempt is never interrupted.
func (r *CampaignRepository) RequestStop(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE campaigns SET stop_requested = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("request campaign stop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StopRequested reads the stop flag.
func (r *CampaignRepository) StopRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var stop bool
	err := r.db.QueryRow(ctx,
		`SELECT stop_requested FROM campaigns WHERE id = $1`, id).Scan(&stop)
	if err != nil {
		if isNoRows(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("read stop flag: %w", err)
	}
	return stop, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
