package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// FormCandidate describes one <form> found on the page. Discovery stamps each
// form with a data-fp-form index attribute so later steps can address it with
// a stable selector regardless of how the page names things.
type FormCandidate struct {
	Index      int  `json:"index"`
	Controls   int  `json:"controls"`
	HasTextbox bool `json:"hasTextbox"`
	HasEmail   bool `json:"hasEmail"`
	Score      int  `json:"score"`
	Visible    bool `json:"visible"`
}

// Selector returns the stable CSS selector for the candidate's form element.
func (f FormCandidate) Selector() string {
	return fmt.Sprintf(`form[data-fp-form="%d"]`, f.Index)
}

// discoverScript enumerates forms, tags them, and reports per-form features.
// Scoring counts contact vocabulary hits in the form's attributes and its
// surrounding text.
const discoverScript = `(() => {
	const vocab = %s;
	const forms = Array.from(document.querySelectorAll('form'));
	return forms.map((form, index) => {
		form.setAttribute('data-fp-form', String(index));
		const controls = form.querySelectorAll(
			'input:not([type=hidden]):not([type=submit]):not([type=button]), textarea, select'
		);
		const style = window.getComputedStyle(form);
		const rect = form.getBoundingClientRect();
		const haystack = (
			form.getAttribute('action') + ' ' +
			form.getAttribute('id') + ' ' +
			form.getAttribute('class') + ' ' +
			form.innerText + ' ' +
			(form.closest('section,div[id],div[class]')?.id || '')
		).toLowerCase();
		let score = 0;
		for (const word of vocab) {
			if (haystack.includes(word)) score++;
		}
		return {
			index,
			controls: controls.length,
			hasTextbox: form.querySelector('textarea') !== null,
			hasEmail: form.querySelector('input[type=email], input[name*=email i]') !== null,
			score,
			visible: style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0,
		};
	});
})()`

// FindContactForm returns the most plausible contact form on the current
// page, or nil when none qualifies. Search-box style forms with a single
// control never qualify.
func FindContactForm(ctx context.Context, page Page, logger *zap.Logger) (*FormCandidate, error) {
	var candidates []FormCandidate
	script := fmt.Sprintf(discoverScript, jsStringArray(contactVocabulary))
	if err := page.Evaluate(ctx, script, &candidates); err != nil {
		return nil, fmt.Errorf("form discovery failed: %w", err)
	}

	var best *FormCandidate
	for i := range candidates {
		c := &candidates[i]
		if !c.Visible || c.Controls < 2 {
			continue
		}
		if best == nil || rankForm(*c) > rankForm(*best) {
			best = c
		}
	}
	if best == nil {
		logger.Debug("No contact form found.", zap.Int("forms_on_page", len(candidates)))
		return nil, nil
	}
	logger.Debug("Contact form selected.",
		zap.Int("index", best.Index),
		zap.Int("controls", best.Controls),
		zap.Int("score", best.Score))
	return best, nil
}

// rankForm orders candidates. A message box plus an email input is the
// strongest signal; vocabulary hits break ties between plain forms.
func rankForm(c FormCandidate) int {
	rank := c.Score * 10
	if c.HasTextbox {
		rank += 50
	}
	if c.HasEmail {
		rank += 30
	}
	return rank + c.Controls
}

// contactLinkScript finds the best anchor pointing at a contact page.
const contactLinkScript = `(() => {
	const vocab = %s;
	const anchors = Array.from(document.querySelectorAll('a[href]'));
	let best = '';
	let bestScore = 0;
	for (const a of anchors) {
		const href = a.href || '';
		if (!href.startsWith('http') || href.includes('mailto:')) continue;
		const haystack = (a.innerText + ' ' + a.getAttribute('href')).toLowerCase();
		let score = 0;
		for (const word of vocab) {
			if (haystack.includes(word)) score += word.length;
		}
		if (score > bestScore) {
			bestScore = score;
			best = href;
		}
	}
	return best;
})()`

// FindContactLink returns the URL of the page's most likely contact page, or
// "" when no anchor matches the contact vocabulary.
func FindContactLink(ctx context.Context, page Page) (string, error) {
	var href string
	script := fmt.Sprintf(contactLinkScript, jsStringArray(contactVocabulary))
	if err := page.Evaluate(ctx, script, &href); err != nil {
		return "", fmt.Errorf("contact link discovery failed: %w", err)
	}
	return href, nil
}

func jsStringArray(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = fmt.Sprintf("%q", w)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
