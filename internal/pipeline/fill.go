package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/model"
)

// claimScript claims the first unclaimed, visible control inside the form
// that matches one of the selectors, stamping it with the semantic field name
// so typing can address it directly.
const claimScript = `(() => {
	const form = document.querySelector(%q);
	if (!form) return false;
	const selectors = %s;
	for (const sel of selectors) {
		for (const el of form.querySelectorAll(sel)) {
			if (el.hasAttribute('data-fp-field')) continue;
			const style = window.getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden') continue;
			el.setAttribute('data-fp-field', %q);
			return true;
		}
	}
	return false;
})()`

// Fill maps the sender profile onto the form's controls and types the values
// in. Each semantic field claims at most one control; a field whose value is
// empty or that matches nothing is skipped. Per-field typing errors are
// logged and swallowed so one stubborn input never aborts the attempt.
func Fill(ctx context.Context, page Page, form *FormCandidate, profile model.SenderProfile, logger *zap.Logger) ([]string, error) {
	values := profileValues(profile)

	var filled []string
	claimed := map[Field]bool{}
	for _, field := range fillOrder {
		value := values[field]
		if value == "" {
			continue
		}
		// A split-name form already owns the name parts; the catch-all
		// full-name pattern must not claim a second input.
		if field == FieldFullName && (claimed[FieldFirstName] || claimed[FieldLastName]) {
			continue
		}

		ok, err := claimControl(ctx, page, form, field)
		if err != nil {
			return filled, err
		}
		if !ok {
			continue
		}
		claimed[field] = true

		target := fmt.Sprintf(`%s [data-fp-field=%q]`, form.Selector(), string(field))
		if err := page.SendKeys(ctx, target, value); err != nil {
			logger.Warn("Could not type into mapped control.",
				zap.String("field", string(field)),
				zap.Error(err))
			continue
		}
		filled = append(filled, string(field))
	}

	logger.Info("Form filled.", zap.Strings("fields", filled))
	return filled, nil
}

func claimControl(ctx context.Context, page Page, form *FormCandidate, field Field) (bool, error) {
	script := fmt.Sprintf(claimScript,
		form.Selector(), jsStringArray(fieldSelectors[field]), string(field))
	var ok bool
	if err := page.Evaluate(ctx, script, &ok); err != nil {
		return false, fmt.Errorf("field mapping failed for %s: %w", field, err)
	}
	return ok, nil
}

func profileValues(p model.SenderProfile) map[Field]string {
	return map[Field]string{
		FieldFirstName: p.FirstName,
		FieldLastName:  p.LastName,
		FieldFullName:  p.FullName(),
		FieldEmail:     p.Email,
		FieldPhone:     p.Phone,
		FieldCompany:   p.Company,
		FieldJobTitle:  p.JobTitle,
		FieldSubject:   p.Subject,
		FieldWebsite:   p.Website,
		FieldMessage:   p.Message,
	}
}
