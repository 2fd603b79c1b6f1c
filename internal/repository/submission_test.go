package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outreachlabs/formpilot/internal/model"
)

func TestSubmissionCreateBatch(t *testing.T) {
	mock := newMock(t)
	repo := NewSubmissionRepository(mock)

	campaignID := uuid.New()
	targets := []string{"a.example.io", "b.example.io"}
	for _, target := range targets {
		mock.ExpectExec(`INSERT INTO submissions`).
			WithArgs(pgxmock.AnyArg(), campaignID, target, model.SubmissionPending).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, repo.CreateBatch(context.Background(), campaignID, targets))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionNextPendingOrdersByCreation(t *testing.T) {
	mock := newMock(t)
	repo := NewSubmissionRepository(mock)

	campaignID := uuid.New()
	subID := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM submissions`).
		WithArgs(campaignID, model.SubmissionPending).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "campaign_id", "target_url", "status", "retry_count",
		}).AddRow(subID, campaignID, "a.example.io", model.SubmissionPending, 0))

	s, err := repo.NextPending(context.Background(), campaignID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, subID, s.ID)
	assert.Equal(t, "a.example.io", s.TargetURL)
}

func TestSubmissionNextPendingExhausted(t *testing.T) {
	mock := newMock(t)
	repo := NewSubmissionRepository(mock)

	campaignID := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM submissions`).
		WithArgs(campaignID, model.SubmissionPending).
		WillReturnError(pgx.ErrNoRows)

	s, err := repo.NextPending(context.Background(), campaignID)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSubmissionMarkProcessingRequiresPending(t *testing.T) {
	mock := newMock(t)
	repo := NewSubmissionRepository(mock)

	id := uuid.New()
	mock.ExpectExec(`UPDATE submissions SET status`).
		WithArgs(id, model.SubmissionProcessing, model.SubmissionPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.MarkProcessing(context.Background(), id), ErrNotFound)
}

func TestSubmissionComplete(t *testing.T) {
	mock := newMock(t)
	repo := NewSubmissionRepository(mock)

	s := &model.Submission{
		ID:                 uuid.New(),
		Status:             model.SubmissionSuccess,
		Method:             model.MethodForm,
		CaptchaEncountered: true,
		CaptchaSolved:      true,
		Outcome:            model.OutcomeConfirmed,
		FieldsFilled:       4,
	}
	mock.ExpectExec(`UPDATE submissions`).
		WithArgs(s.ID, s.Status, s.Method, "", true, true,
			s.Outcome, 4, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Complete(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRetryFailedHonorsCeiling(t *testing.T) {
	mock := newMock(t)
	repo := NewSubmissionRepository(mock)

	campaignID := uuid.New()
	mock.ExpectExec(`UPDATE submissions`).
		WithArgs(campaignID, model.SubmissionPending, model.SubmissionFailed, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.RetryFailed(context.Background(), campaignID, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestSubmissionPendingCount(t *testing.T) {
	mock := newMock(t)
	repo := NewSubmissionRepository(mock)

	campaignID := uuid.New()
	mock.ExpectQuery(`SELECT count`).
		WithArgs(campaignID, model.SubmissionPending).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.PendingCount(context.Background(), campaignID)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
