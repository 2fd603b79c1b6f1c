// Package processor runs one campaign end to end: it acquires a browser
// session, walks the pending targets in creation order at the configured
// pace, records each attempt, and finalizes the campaign. Targets are
// strictly sequential within a campaign; parallelism exists only across
// campaigns.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/outreachlabs/formpilot/internal/browser"
	"github.com/outreachlabs/formpilot/internal/config"
	"github.com/outreachlabs/formpilot/internal/model"
	"github.com/outreachlabs/formpilot/internal/pipeline"
	"github.com/outreachlabs/formpilot/internal/repository"
)

// CampaignStore is the campaign persistence surface the processor needs.
type CampaignStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	Finalize(ctx context.Context, id uuid.UUID, status model.CampaignStatus) error
	IncrementSuccess(ctx context.Context, id uuid.UUID) error
	IncrementFailure(ctx context.Context, id uuid.UUID) error
	DecrementFailures(ctx context.Context, id uuid.UUID, n int64) error
	StopRequested(ctx context.Context, id uuid.UUID) (bool, error)
}

// SubmissionStore is the per-target persistence surface.
type SubmissionStore interface {
	NextPending(ctx context.Context, campaignID uuid.UUID) (*model.Submission, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, s *model.Submission) error
	RetryFailed(ctx context.Context, campaignID uuid.UUID, maxRetries int) (int64, error)
}

// Session is one browser tab owned by the campaign run.
type Session interface {
	pipeline.Page
	Close()
}

// SessionFactory hands out sessions; satisfied by wrapping browser.Manager.
type SessionFactory func(ctx context.Context) (Session, error)

// Runner executes one target attempt; satisfied by pipeline.Executor.
type Runner interface {
	Run(ctx context.Context, page pipeline.Page, targetURL string, profile model.SenderProfile) (pipeline.Result, error)
}

// Processor drives campaigns.
type Processor struct {
	cfg         *config.Config
	campaigns   CampaignStore
	submissions SubmissionStore
	sessions    SessionFactory
	runner      Runner
	logger      *zap.Logger
}

// New builds a campaign processor.
func New(cfg *config.Config, campaigns CampaignStore, submissions SubmissionStore, sessions SessionFactory, runner Runner, logger *zap.Logger) *Processor {
	return &Processor{
		cfg:         cfg,
		campaigns:   campaigns,
		submissions: submissions,
		sessions:    sessions,
		runner:      runner,
		logger:      logger.Named("processor"),
	}
}

// Run processes one campaign to a terminal state. A redelivered job for an
// already-finished campaign is a no-op.
func (p *Processor) Run(ctx context.Context, campaignID uuid.UUID, profile model.SenderProfile) error {
	logger := p.logger.With(zap.String("campaign_id", campaignID.String()))

	campaign, err := p.campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if campaign.Status.Terminal() {
		logger.Info("Campaign already finished, skipping.", zap.String("status", string(campaign.Status)))
		return nil
	}
	if err := p.campaigns.MarkRunning(ctx, campaignID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("Campaign reached a terminal state concurrently, skipping.")
			return nil
		}
		return err
	}
	logger.Info("Campaign started.", zap.Int("targets", campaign.TargetCount))

	// The campaign's own message wins over the profile default.
	if campaign.Message != "" {
		profile.Message = campaign.Message
	}

	session, err := p.sessions(ctx)
	if err != nil {
		// A browser that cannot launch fails the whole run; no target can be
		// attempted without it.
		logger.Error("Browser session unavailable, failing campaign.",
			zap.Bool("driver_init", errors.Is(err, browser.ErrDriverInit)),
			zap.Error(err))
		if finErr := p.campaigns.Finalize(ctx, campaignID, model.CampaignFailed); finErr != nil {
			logger.Error("Could not finalize failed campaign.", zap.Error(finErr))
		}
		return err
	}
	defer session.Close()

	pace := p.cfg.Processor.PaceInterval
	if pace <= 0 {
		pace = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(pace), 1)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stop, err := p.campaigns.StopRequested(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("read stop flag: %w", err)
		}
		if stop {
			logger.Info("Stop requested, finalizing campaign.")
			return p.campaigns.Finalize(ctx, campaignID, model.CampaignStopped)
		}

		sub, err := p.submissions.NextPending(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("fetch next target: %w", err)
		}
		if sub == nil {
			requeued, err := p.submissions.RetryFailed(ctx, campaignID, p.cfg.Processor.MaxRetries)
			if err != nil {
				return fmt.Errorf("requeue failed targets: %w", err)
			}
			if requeued > 0 {
				if err := p.campaigns.DecrementFailures(ctx, campaignID, requeued); err != nil {
					return err
				}
				logger.Info("Requeued failed targets for retry.", zap.Int64("count", requeued))
				continue
			}
			logger.Info("Campaign completed.")
			return p.campaigns.Finalize(ctx, campaignID, model.CampaignCompleted)
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := p.submissions.MarkProcessing(ctx, sub.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return err
		}

		p.attemptTarget(ctx, session, sub, profile, logger)
	}
}

// attemptTarget runs one attempt and records its terminal row plus the
// campaign counter. A panic inside the attempt fails only this target.
func (p *Processor) attemptTarget(ctx context.Context, session Session, sub *model.Submission, profile model.SenderProfile, logger *zap.Logger) {
	res, err := p.runAttempt(ctx, session, sub.TargetURL, profile)

	sub.Method = res.Method
	sub.ExtractedEmail = res.ExtractedEmail
	sub.CaptchaEncountered = res.CaptchaEncountered
	sub.CaptchaSolved = res.CaptchaSolved
	sub.Outcome = res.Outcome
	sub.FieldsFilled = len(res.FieldsFilled)

	switch {
	case err != nil:
		sub.Status = model.SubmissionFailed
		sub.ErrorDetail = err.Error()
	case res.Method == model.MethodEmail:
		sub.Status = model.SubmissionSuccess
	case res.Outcome == model.OutcomeConfirmed:
		sub.Status = model.SubmissionSuccess
	default:
		// Unconfirmed and rejected submissions both count as failures; an
		// attempt without a success indicator is never reported as one.
		sub.Status = model.SubmissionFailed
		sub.ErrorDetail = res.Detail
	}

	if err := p.submissions.Complete(ctx, sub); err != nil {
		logger.Error("Could not record attempt result.",
			zap.String("submission_id", sub.ID.String()), zap.Error(err))
		return
	}

	var counterErr error
	if sub.Status == model.SubmissionSuccess {
		counterErr = p.campaigns.IncrementSuccess(ctx, sub.CampaignID)
	} else {
		counterErr = p.campaigns.IncrementFailure(ctx, sub.CampaignID)
	}
	if counterErr != nil {
		logger.Error("Could not update campaign counter.", zap.Error(counterErr))
	}

	logger.Info("Target processed.",
		zap.String("target", sub.TargetURL),
		zap.String("status", string(sub.Status)),
		zap.String("outcome", string(sub.Outcome)),
		zap.String("method", string(sub.Method)))
}

// runAttempt isolates the pipeline behind a panic guard.
func (p *Processor) runAttempt(ctx context.Context, session Session, targetURL string, profile model.SenderProfile) (res pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("attempt panicked: %v", r)
		}
	}()
	return p.runner.Run(ctx, session, targetURL, profile)
}
