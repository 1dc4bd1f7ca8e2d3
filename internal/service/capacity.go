package service

import (
	"context"
	"fmt"

	"github.com/fundacion-aprender/portal-api/internal/models"
)

type activeEnrollmentCounter interface {
	CountActive(ctx context.Context, workshopID string) (int, error)
}

// CapacityLedger derives seat availability from the authoritative count of
// active enrollments. The persisted available_seats column is never consulted;
// callers must treat a non-positive result as full.
type CapacityLedger struct {
	enrollments activeEnrollmentCounter
}

// NewCapacityLedger constructs the ledger.
func NewCapacityLedger(enrollments activeEnrollmentCounter) *CapacityLedger {
	return &CapacityLedger{enrollments: enrollments}
}

// AvailableSeats returns max_seats minus the current active enrollment count.
func (l *CapacityLedger) AvailableSeats(ctx context.Context, workshop *models.Workshop) (int, error) {
	count, err := l.enrollments.CountActive(ctx, workshop.ID)
	if err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return workshop.MaxSeats - count, nil
}
