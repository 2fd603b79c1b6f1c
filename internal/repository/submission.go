package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/outreachlabs/formpilot/internal/model"
)

// SubmissionRepository persists the per-target rows of a campaign.
type SubmissionRepository struct {
	db DB
}

// NewSubmissionRepository binds a repository to a database handle.
func NewSubmissionRepository(db DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// CreateBatch materializes one pending row per target URL.
func (r *SubmissionRepository) CreateBatch(ctx context.Context, campaignID uuid.UUID, targetURLs []string) error {
	for _, target := range targetURLs {
		_, err := r.db.Exec(ctx, `
			INSERT INTO submissions (id, campaign_id, target_url, status)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), campaignID, target, model.SubmissionPending)
		if err != nil {
			return fmt.Errorf("insert submission for %q: %w", target, err)
		}
	}
	return nil
}

// NextPending returns the oldest pending submission of the campaign, or nil
// when none remain. Creation order is the processing order.
func (r *SubmissionRepository) NextPending(ctx context.Context, campaignID uuid.UUID) (*model.Submission, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, campaign_id, target_url, status, retry_count
		FROM submissions
		WHERE campaign_id = $1 AND status = $2
		ORDER BY created_at, id
		LIMIT 1`, campaignID, model.SubmissionPending)

	var s model.Submission
	err := row.Scan(&s.ID, &s.CampaignID, &s.TargetURL, &s.Status, &s.RetryCount)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select next pending submission: %w", err)
	}
	return &s, nil
}

// MarkProcessing transitions pending -> processing and stamps the start time.
func (r *SubmissionRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE submissions SET status = $2, started_at = now()
		WHERE id = $1 AND status = $3`,
		id, model.SubmissionProcessing, model.SubmissionPending)
	if err != nil {
		return fmt.Errorf("mark submission processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete records the attempt's findings and moves the row to its terminal
// status.
func (r *SubmissionRepository) Complete(ctx context.Context, s *model.Submission) error {
	_, err := r.db.Exec(ctx, `
		UPDATE submissions
		SET status = $2, method = $3, extracted_email = $4,
		    captcha_encountered = $5, captcha_solved = $6,
		    outcome = $7, fields_filled = $8, error_detail = $9,
		    completed_at = now()
		WHERE id = $1`,
		s.ID, s.Status, s.Method, s.ExtractedEmail,
		s.CaptchaEncountered, s.CaptchaSolved,
		s.Outcome, s.FieldsFilled, s.ErrorDetail)
	if err != nil {
		return fmt.Errorf("complete submission: %w", err)
	}
	return nil
}

// RetryFailed resets failed rows below the retry ceiling back to pending and
// counts each reset against the ceiling. Returns how many rows were requeued.
func (r *SubmissionRepository) RetryFailed(ctx context.Context, campaignID uuid.UUID, maxRetries int) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE submissions
		SET status = $2, retry_count = retry_count + 1,
		    error_detail = '', completed_at = NULL
		WHERE campaign_id = $1 AND status = $3 AND retry_count < $4`,
		campaignID, model.SubmissionPending, model.SubmissionFailed, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("retry failed submissions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PendingCount reports how many targets still wait for an attempt.
func (r *SubmissionRepository) PendingCount(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM submissions
		WHERE campaign_id = $1 AND status = $2`,
		campaignID, model.SubmissionPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending submissions: %w", err)
	}
	return n, nil
}
