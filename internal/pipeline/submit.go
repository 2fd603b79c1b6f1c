package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Submit fires the form. It walks the submit control chain first, then falls
// back to a programmatic submit, then to the Enter key in the last filled
// text control. Only when every route fails does the attempt error out.
func Submit(ctx context.Context, page Page, form *FormCandidate, filled []string, logger *zap.Logger) error {
	for _, sel := range submitSelectors {
		scoped := form.Selector() + " " + sel
		if err := page.Click(ctx, scoped); err == nil {
			logger.Debug("Form submitted via control.", zap.String("selector", sel))
			return nil
		}
	}

	// requestSubmit runs validation and submit handlers like a real click.
	script := fmt.Sprintf(`(() => {
		const form = document.querySelector(%q);
		if (!form) return false;
		if (form.requestSubmit) form.requestSubmit(); else form.submit();
		return true;
	})()`, form.Selector())
	var ok bool
	if err := page.Evaluate(ctx, script, &ok); err == nil && ok {
		logger.Debug("Form submitted programmatically.")
		return nil
	}

	// Enter only commits from single-line inputs; inside the message
	// textarea it just inserts a newline.
	for i := len(filled) - 1; i >= 0; i-- {
		if filled[i] == string(FieldMessage) {
			continue
		}
		target := fmt.Sprintf(`%s [data-fp-field=%q]`, form.Selector(), filled[i])
		if err := page.SendKeys(ctx, target, "\n"); err == nil {
			logger.Debug("Form submitted via Enter key.", zap.String("field", filled[i]))
			return nil
		}
	}

	return fmt.Errorf("no submission route worked for %s", form.Selector())
}
