// Package captcha detects anti-bot challenges on a page and solves them
// through an external 2captcha-style submit/poll service. Solving failures
// and timeouts are downgraded to an unsolved result, never an error: many
// sites do not hard-block on an unanswered optional challenge, so the
// submission executor always proceeds with the attempt.
package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Type identifies the challenge family present on a page.
type Type string

const (
	TypeNone      Type = ""
	TypeImage     Type = "image"
	TypeRecaptcha Type = "recaptcha"
	TypeHCaptcha  Type = "hcaptcha"
	TypeTurnstile Type = "turnstile"
)

// markerSelectors maps each challenge type to the DOM marker that reveals it.
// Checked in order; the site-key widgets win over a stray captcha image.
var markerSelectors = []struct {
	Type     Type
	Selector string
}{
	{TypeRecaptcha, `.g-recaptcha[data-sitekey], iframe[src*="recaptcha"]`},
	{TypeHCaptcha, `.h-captcha[data-sitekey]`},
	{TypeTurnstile, `.cf-turnstile[data-sitekey]`},
	{TypeImage, `img[src*="captcha" i]`},
}

// Page is the browser surface the solver needs.
type Page interface {
	Evaluate(ctx context.Context, script string, res any) error
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	SendKeys(ctx context.Context, selector, text string) error
}

// Result is the outcome of one solve attempt.
type Result struct {
	Encountered bool
	Solved      bool
	Duration    time.Duration
	Detail      string
}

// Detect reports which known challenge type, if any, is present on the page.
func Detect(ctx context.Context, page Page) (Type, error) {
	for _, marker := range markerSelectors {
		var present bool
		script := fmt.Sprintf(`document.querySelector(%q) !== null`, marker.Selector)
		if err := page.Evaluate(ctx, script, &present); err != nil {
			return TypeNone, fmt.Errorf("captcha detection failed: %w", err)
		}
		if present {
			return marker.Type, nil
		}
	}
	return TypeNone, nil
}

// Solver talks to the external solving service.
type Solver struct {
	cfg    config.CaptchaConfig
	client *http.Client
	logger *zap.Logger
}

// NewSolver builds a solver client from configuration.
func NewSolver(cfg config.CaptchaConfig, logger *zap.Logger) *Solver {
	return &Solver{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.Named("captcha"),
	}
}

// Solve dispatches to the type-specific routine. apiKey overrides the
// configured service key when the campaign owner supplies their own account.
func (s *Solver) Solve(ctx context.Context, page Page, typ Type, pageURL, apiKey string) Result {
	if typ == TypeNone {
		return Result{}
	}
	res := Result{Encountered: true}
	if !s.cfg.Enabled {
		res.Detail = "captcha solving disabled"
		return res
	}

	key := apiKey
	if key == "" {
		key = s.cfg.APIKey
	}
	if key == "" {
		res.Detail = "no solving service credentials"
		return res
	}

	start := time.Now()
	solveCtx, cancel := context.WithTimeout(ctx, s.cfg.SolveTimeout)
	defer cancel()

	var err error
	switch typ {
	case TypeImage:
		err = s.solveImage(solveCtx, page, key)
	default:
		err = s.solveSiteKey(solveCtx, page, typ, pageURL, key)
	}
	res.Duration = time.Since(start)

	if err != nil {
		// Timeouts and transport errors are both downgraded to unsolved.
		res.Detail = err.Error()
		s.logger.Warn("Captcha left unsolved.",
			zap.String("type", string(typ)),
			zap.Duration("elapsed", res.Duration),
			zap.Error(err))
		return res
	}

	res.Solved = true
	s.logger.Info("Captcha solved.",
		zap.String("type", string(typ)),
		zap.Duration("elapsed", res.Duration))
	return res
}

// solveImage screenshots the challenge image, submits it base64-encoded, and
// types the text answer into the adjacent input.
func (s *Solver) solveImage(ctx context.Context, page Page, apiKey string) error {
	img, err := page.Screenshot(ctx, `img[src*="captcha" i]`)
	if err != nil {
		return fmt.Errorf("could not capture challenge image: %w", err)
	}

	taskID, err := s.submit(ctx, url.Values{
		"key":    {apiKey},
		"method": {"base64"},
		"body":   {base64.StdEncoding.EncodeToString(img)},
		"json":   {"1"},
	})
	if err != nil {
		return err
	}

	answer, err := s.poll(ctx, apiKey, taskID)
	if err != nil {
		return err
	}

	// The answer input sits next to the image on every layout we handle.
	for _, sel := range []string{
		`input[name*="captcha" i]`,
		`input[id*="captcha" i]`,
		`input[placeholder*="captcha" i]`,
	} {
		if err := page.SendKeys(ctx, sel, answer); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no input found for captcha answer")
}

// solveSiteKey submits the widget's site key and page URL, then injects the
// returned token into the page's expected response field.
func (s *Solver) solveSiteKey(ctx context.Context, page Page, typ Type, pageURL, apiKey string) error {
	siteKey, err := extractSiteKey(ctx, page)
	if err != nil {
		return err
	}

	taskID, err := s.submit(ctx, url.Values{
		"key":     {apiKey},
		"method":  {submitMethod(typ)},
		"sitekey": {siteKey},
		"pageurl": {pageURL},
		"json":    {"1"},
	})
	if err != nil {
		return err
	}

	token, err := s.poll(ctx, apiKey, taskID)
	if err != nil {
		return err
	}
	return injectToken(ctx, page, typ, token)
}

// submit posts a challenge to the service and returns the opaque task id.
func (s *Solver) submit(ctx context.Context, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read submit response: %w", err)
	}

	var submitResp struct {
		Status  int    `json:"status"`
		Request string `json:"request"`
	}
	if err := json.Unmarshal(body, &submitResp); err != nil {
		return "", fmt.Errorf("parse submit response: %w", err)
	}
	if submitResp.Status != 1 {
		return "", fmt.Errorf("submit rejected: %s", submitResp.Request)
	}
	return submitResp.Request, nil
}

// poll asks for the solution at the fixed interval until the context's
// timeout budget runs out.
func (s *Solver) poll(ctx context.Context, apiKey, taskID string) (string, error) {
	pollURL := fmt.Sprintf("%s/res.php?key=%s&action=get&id=%s&json=1",
		s.cfg.BaseURL, url.QueryEscape(apiKey), url.QueryEscape(taskID))

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("solve timed out: %w", ctx.Err())
		case <-time.After(s.cfg.PollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return "", fmt.Errorf("build poll request: %w", err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("poll request: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("read poll response: %w", err)
		}

		var result struct {
			Status  int    `json:"status"`
			Request string `json:"request"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("parse poll response: %w", err)
		}
		if result.Status == 1 {
			return result.Request, nil
		}
		if result.Request != "CAPCHA_NOT_READY" {
			return "", fmt.Errorf("solve failed: %s", result.Request)
		}
	}
}

func submitMethod(typ Type) string {
	switch typ {
	case TypeHCaptcha:
		return "hcaptcha"
	case TypeTurnstile:
		return "turnstile"
	default:
		return "userrecaptcha"
	}
}

func extractSiteKey(ctx context.Context, page Page) (string, error) {
	const script = `(() => {
		const el = document.querySelector('[data-sitekey]');
		return el ? el.getAttribute('data-sitekey') : '';
	})()`
	var siteKey string
	if err := page.Evaluate(ctx, script, &siteKey); err != nil {
		return "", fmt.Errorf("site key lookup failed: %w", err)
	}
	if siteKey == "" {
		return "", fmt.Errorf("no site key attribute found")
	}
	return siteKey, nil
}

// injectToken writes the solved token where the widget's verifier reads it.
func injectToken(ctx context.Context, page Page, typ Type, token string) error {
	field := "g-recaptcha-response"
	switch typ {
	case TypeHCaptcha:
		field = "h-captcha-response"
	case TypeTurnstile:
		field = "cf-turnstile-response"
	}
	script := fmt.Sprintf(`(() => {
		let el = document.querySelector('textarea[name=%q], input[name=%q]');
		if (!el) {
			el = document.createElement('textarea');
			el.name = %q;
			el.style.display = 'none';
			const form = document.querySelector('form');
			(form || document.body).appendChild(el);
		}
		el.value = %q;
		return true;
	})()`, field, field, field, token)

	var ok bool
	if err := page.Evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("token injection failed: %w", err)
	}
	return nil
}
