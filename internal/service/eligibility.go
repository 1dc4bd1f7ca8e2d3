package service

import "github.com/fundacion-aprender/portal-api/internal/models"

// EligibilityInput carries the pre-fetched facts about one enrollment. The
// caller resolves the workshop, the enrollment row and the survey-completion
// signal before evaluating; the predicate itself performs no I/O.
type EligibilityInput struct {
	Workshop        models.Workshop
	Enrollment      models.Enrollment
	SurveyCompleted bool
}

// CertificateEligible reports whether the enrollment qualifies for a
// certificate: the workshop must allow certificates and be finalized, the
// participant must have attended, and when the workshop requires a survey the
// completion signal must be present.
func CertificateEligible(in EligibilityInput) bool {
	if !in.Workshop.AllowsCertificate {
		return false
	}
	if in.Workshop.Status != models.WorkshopStatusFinalized {
		return false
	}
	if !in.Enrollment.Attended {
		return false
	}
	if in.Workshop.RequiresSurvey && !in.SurveyCompleted {
		return false
	}
	return true
}
