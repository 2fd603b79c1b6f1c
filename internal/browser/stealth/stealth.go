// Package stealth masks the automation markers a headless browser leaks so
// third-party sites treat the session like a user-operated browser.
package stealth

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// Apply builds the CDP task sequence that installs the evasion script on
// every new document and pins the user agent override.
func Apply(userAgent string, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying stealth evasions.", zap.String("user_agent", userAgent))

	return chromedp.Tasks{
		emulation.SetUserAgentOverride(userAgent),

		// AddScriptToEvaluateOnNewDocument returns two values, so it needs
		// the ActionFunc wrapper.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
}
