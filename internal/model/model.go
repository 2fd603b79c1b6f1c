// Package model holds the persistent and in-flight data types shared by the
// submission pipeline, the campaign processor, and the repositories.
package model

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle state of a batch job.
type CampaignStatus string

const (
	CampaignCreated   CampaignStatus = "created"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignStopped   CampaignStatus = "stopped"
)

// Terminal reports whether the campaign can no longer change state.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignFailed || s == CampaignStopped
}

// SubmissionStatus is the lifecycle state of one target attempt.
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionSuccess    SubmissionStatus = "success"
	SubmissionFailed     SubmissionStatus = "failed"
)

// ContactMethod records which contact mechanism an attempt ended up using.
type ContactMethod string

const (
	MethodForm  ContactMethod = "form"
	MethodEmail ContactMethod = "email"
	MethodNone  ContactMethod = "none"
)

// Outcome classifies the post-submission page state. An action that was
// performed but produced no success indicator is kept distinct from a
// confirmed success; callers must not upgrade it.
type Outcome string

const (
	// OutcomeConfirmed means a success-indicator phrase or element was found
	// on the page after the submission action.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeUnconfirmed means the submission action completed but the page
	// showed no success indicator.
	OutcomeUnconfirmed Outcome = "submitted_unconfirmed"
	// OutcomeNotSubmitted means no submission action could be performed.
	OutcomeNotSubmitted Outcome = "not_submitted"
)

// Campaign is one batch of contact-form submissions owned by an account.
// Invariant once targets are materialized:
//
//	SuccessCount + FailureCount + pending == TargetCount
type Campaign struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Message      string
	TargetCount  int
	SuccessCount int
	FailureCount int
	Status       CampaignStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

// Submission is one row per URL attempted within a campaign. Status moves only
// forward (pending -> processing -> success|failed) except the operator retry
// transition, which resets failed -> pending and increments RetryCount.
type Submission struct {
	ID                 uuid.UUID
	CampaignID         uuid.UUID
	TargetURL          string
	Status             SubmissionStatus
	Method             ContactMethod
	ExtractedEmail     string
	CaptchaEncountered bool
	CaptchaSolved      bool
	Outcome            Outcome
	FieldsFilled       int
	RetryCount         int
	ErrorDetail        string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// SenderProfile is the read-only identity the pipeline fills into forms.
// The pipeline never mutates it.
type SenderProfile struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
	JobTitle  string
	Subject   string
	Message   string
	Website   string

	// Credentials for the external CAPTCHA solving service, when the
	// campaign owner supplies their own account.
	CaptchaAPIKey string
}

// FullName joins the name parts for forms that expose a single name input.
func (p SenderProfile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
