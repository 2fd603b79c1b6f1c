package pipeline

import (
	"net/url"
	"strings"

	"github.com/outreachlabs/formpilot/internal/model"
)

// successPhrases confirm the site accepted the message.
var successPhrases = []string{
	"thank you for your message",
	"thank you for contacting",
	"thanks for reaching out",
	"thanks for getting in touch",
	"message has been sent",
	"message was sent",
	"message sent successfully",
	"successfully submitted",
	"submission has been received",
	"we will get back to you",
	"we'll get back to you",
	"we will be in touch",
	"your enquiry has been",
	"your inquiry has been",
}

// rejectionPhrases mean the site refused the submission outright.
var rejectionPhrases = []string{
	"please fill in all required",
	"this field is required",
	"is a required field",
	"please enter a valid",
	"invalid email address",
	"captcha verification failed",
	"captcha is incorrect",
	"incorrect captcha",
	"failed to send your message",
	"error sending message",
	"could not be sent",
	"spam detected",
}

// successPathSegments are whole path segments of post-submit confirmation
// pages. Matched segment-exact, not by substring: "sent" must not fire on
// /consent, nor "thanks" on a query parameter.
var successPathSegments = map[string]bool{
	"thank-you":    true,
	"thankyou":     true,
	"thank_you":    true,
	"thanks":       true,
	"success":      true,
	"confirmation": true,
	"confirmed":    true,
	"sent":         true,
	"message-sent": true,
}

// confirmationURL reports whether the URL's path contains a confirmation
// segment.
func confirmationURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if successPathSegments[seg] {
			return true
		}
	}
	return false
}

// Classify decides the outcome of a fired submission from the page state
// after settling, returning the phrase or URL marker that served as evidence.
// It is a pure function over its inputs: re-running it on the same state
// yields the same outcome.
//
// An explicit rejection downgrades to not submitted. An explicit confirmation
// phrase or a recognized confirmation URL upgrades to confirmed. Everything
// else stays at submitted-unconfirmed; ambiguity is never reported as
// success.
func Classify(beforeURL, afterURL, html string) (model.Outcome, string) {
	lower := strings.ToLower(html)

	for _, phrase := range rejectionPhrases {
		if strings.Contains(lower, phrase) {
			return model.OutcomeNotSubmitted, phrase
		}
	}
	for _, phrase := range successPhrases {
		if strings.Contains(lower, phrase) {
			return model.OutcomeConfirmed, phrase
		}
	}
	if afterURL != beforeURL && confirmationURL(afterURL) {
		return model.OutcomeConfirmed, "redirected to " + afterURL
	}
	return model.OutcomeUnconfirmed, ""
}
