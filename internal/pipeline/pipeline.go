// Package pipeline implements the per-target submission attempt: discover
// the contact surface, map and fill the sender profile, clear any challenge,
// fire the form, and classify what happened. Falls back to harvesting a
// published email address when no form can be worked.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/captcha"
	"github.com/outreachlabs/formpilot/internal/config"
	"github.com/outreachlabs/formpilot/internal/model"
)

// ErrNoContactRoute means the target offered neither a workable form nor a
// published email address.
var ErrNoContactRoute = errors.New("no contact route found")

// Page is the browser session surface the pipeline drives. Satisfied by
// browser.Session; tests supply fakes.
type Page interface {
	Navigate(ctx context.Context, rawURL string) (string, error)
	HTML(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string, res any) error
	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	WaitSettle(ctx context.Context, quiet time.Duration) error
}

// Solver clears challenges before submission. Satisfied by captcha.Solver.
type Solver interface {
	Solve(ctx context.Context, page captcha.Page, typ captcha.Type, pageURL, apiKey string) captcha.Result
}

// Result records everything one attempt learned about a target.
type Result struct {
	Method             model.ContactMethod
	Outcome            model.Outcome
	FinalURL           string
	FieldsFilled       []string
	CaptchaEncountered bool
	CaptchaSolved      bool
	ExtractedEmail     string
	Detail             string
}

// Executor runs attempts. One executor serves a whole campaign; it holds no
// per-target state.
type Executor struct {
	cfg    *config.Config
	solver Solver
	logger *zap.Logger
}

// NewExecutor builds an attempt executor.
func NewExecutor(cfg *config.Config, solver Solver, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		solver: solver,
		logger: logger.Named("pipeline"),
	}
}

// Run performs one full submission attempt against targetURL. A returned
// error means the target could not be worked at all (unreachable, or no
// contact route); a nil error with OutcomeNotSubmitted means the site
// rejected the filled form.
func (e *Executor) Run(ctx context.Context, page Page, targetURL string, profile model.SenderProfile) (Result, error) {
	logger := e.logger.With(zap.String("target", targetURL))

	finalURL, err := page.Navigate(ctx, targetURL)
	if err != nil {
		return Result{}, err
	}
	res := Result{FinalURL: finalURL}

	form, err := e.locateForm(ctx, page, &res, logger)
	if err != nil {
		return res, err
	}
	if form == nil {
		return e.emailFallback(ctx, page, res, logger)
	}

	res.Method = model.MethodForm
	filled, err := Fill(ctx, page, form, profile, logger)
	if err != nil {
		return res, err
	}
	res.FieldsFilled = filled
	if len(filled) == 0 {
		logger.Warn("Form matched no profile fields, falling back to email harvest.")
		return e.emailFallback(ctx, page, res, logger)
	}

	if typ, err := captcha.Detect(ctx, page); err != nil {
		logger.Warn("Captcha detection errored, proceeding without solving.", zap.Error(err))
	} else if typ != captcha.TypeNone {
		solved := e.solver.Solve(ctx, page, typ, res.FinalURL, profile.CaptchaAPIKey)
		res.CaptchaEncountered = solved.Encountered
		res.CaptchaSolved = solved.Solved
	}

	beforeURL := res.FinalURL
	if err := Submit(ctx, page, form, filled, logger); err != nil {
		res.Outcome = model.OutcomeNotSubmitted
		res.Detail = err.Error()
		return res, nil
	}

	if err := page.WaitSettle(ctx, e.cfg.Pipeline.SubmitSettleWait); err != nil {
		logger.Debug("Post-submit settle interrupted.", zap.Error(err))
	}

	afterURL := beforeURL
	if err := page.Evaluate(ctx, "window.location.href", &afterURL); err != nil {
		logger.Debug("Could not read post-submit location.", zap.Error(err))
	}
	afterHTML, err := page.HTML(ctx)
	if err != nil {
		// The page may have been torn down by a hard redirect. Without
		// evidence either way the attempt stays unconfirmed.
		res.Outcome = model.OutcomeUnconfirmed
		res.Detail = "post-submit page state unavailable"
		return res, nil
	}

	res.FinalURL = afterURL
	outcome, evidence := Classify(beforeURL, afterURL, afterHTML)
	res.Outcome = outcome
	if outcome != model.OutcomeUnconfirmed {
		res.Detail = evidence
	}
	logger.Info("Attempt classified.",
		zap.String("outcome", string(res.Outcome)),
		zap.String("evidence", evidence),
		zap.Int("fields_filled", len(filled)),
		zap.Bool("captcha", res.CaptchaEncountered))
	return res, nil
}

// locateForm looks for a contact form on the landing page, hopping through
// contact links up to the configured limit when the landing page has none.
func (e *Executor) locateForm(ctx context.Context, page Page, res *Result, logger *zap.Logger) (*FormCandidate, error) {
	hopLimit := e.cfg.Pipeline.ContactHopLimit
	if hopLimit <= 0 {
		hopLimit = 1
	}

	for hop := 0; ; hop++ {
		form, err := FindContactForm(ctx, page, logger)
		if err != nil {
			return nil, err
		}
		if form != nil || hop >= hopLimit {
			return form, nil
		}

		link, err := FindContactLink(ctx, page)
		if err != nil || link == "" || link == res.FinalURL {
			return nil, nil
		}
		logger.Debug("Following contact link.", zap.String("href", link))
		finalURL, err := page.Navigate(ctx, link)
		if err != nil {
			// The landing page is still loaded and may publish an address.
			return nil, nil
		}
		res.FinalURL = finalURL
	}
}

// emailFallback harvests a published address when no form can be worked.
func (e *Executor) emailFallback(ctx context.Context, page Page, res Result, logger *zap.Logger) (Result, error) {
	pageHTML, err := page.HTML(ctx)
	if err != nil {
		res.Method = model.MethodNone
		return res, ErrNoContactRoute
	}
	if addr := ExtractEmail(pageHTML); addr != "" {
		res.Method = model.MethodEmail
		res.ExtractedEmail = addr
		logger.Info("Contact email harvested.", zap.String("email", addr))
		return res, nil
	}
	res.Method = model.MethodNone
	return res, ErrNoContactRoute
}
