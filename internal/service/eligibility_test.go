package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundacion-aprender/portal-api/internal/models"
)

func TestCertificateEligible(t *testing.T) {
	base := models.Workshop{
		ID:                "w1",
		Status:            models.WorkshopStatusFinalized,
		AllowsCertificate: true,
		RequiresSurvey:    true,
	}
	attended := models.Enrollment{ID: "e1", Status: models.EnrollmentStatusActive, Attended: true}

	tests := []struct {
		name     string
		mutate   func(w *models.Workshop, e *models.Enrollment, surveyDone *bool)
		eligible bool
	}{
		{
			name:     "all conditions met",
			mutate:   func(w *models.Workshop, e *models.Enrollment, surveyDone *bool) {},
			eligible: true,
		},
		{
			name: "workshop does not allow certificates",
			mutate: func(w *models.Workshop, e *models.Enrollment, surveyDone *bool) {
				w.AllowsCertificate = false
			},
			eligible: false,
		},
		{
			name: "workshop still open",
			mutate: func(w *models.Workshop, e *models.Enrollment, surveyDone *bool) {
				w.Status = models.WorkshopStatusOpen
			},
			eligible: false,
		},
		{
			name: "workshop cancelled",
			mutate: func(w *models.Workshop, e *models.Enrollment, surveyDone *bool) {
				w.Status = models.WorkshopStatusCancelled
			},
			eligible: false,
		},
		{
			name: "participant absent",
			mutate: func(w *models.Workshop, e *models.Enrollment, surveyDone *bool) {
				e.Attended = false
			},
			eligible: false,
		},
		{
			name: "survey required but pending",
			mutate: func(w *models.Workshop, e *models.Enrollment, surveyDone *bool) {
				*surveyDone = false
			},
			eligible: false,
		},
		{
			name: "survey not required and not completed",
			mutate: func(w *models.Workshop, e *models.Enrollment, surveyDone *bool) {
				w.RequiresSurvey = false
				*surveyDone = false
			},
			eligible: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			workshop := base
			enrollment := attended
			surveyDone := true
			tc.mutate(&workshop, &enrollment, &surveyDone)

			got := CertificateEligible(EligibilityInput{Workshop: workshop, Enrollment: enrollment, SurveyCompleted: surveyDone})
			assert.Equal(t, tc.eligible, got)
		})
	}
}

type stubActiveCounter struct {
	count int
	err   error
}

func (s *stubActiveCounter) CountActive(ctx context.Context, workshopID string) (int, error) {
	return s.count, s.err
}

func TestCapacityLedgerAvailableSeats(t *testing.T) {
	ledger := NewCapacityLedger(&stubActiveCounter{count: 7})
	workshop := &models.Workshop{ID: "w1", MaxSeats: 10, AvailableSeats: 99}

	available, err := ledger.AvailableSeats(context.Background(), workshop)
	require.NoError(t, err)
	// The persisted column is ignored; only the live count matters.
	assert.Equal(t, 3, available)
}

func TestCapacityLedgerOverbookedWorkshop(t *testing.T) {
	ledger := NewCapacityLedger(&stubActiveCounter{count: 12})
	workshop := &models.Workshop{ID: "w1", MaxSeats: 10}

	available, err := ledger.AvailableSeats(context.Background(), workshop)
	require.NoError(t, err)
	assert.Equal(t, -2, available)
}
