package verification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/notify"
	"github.com/trustbridge/ngoverify/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ApproveApplication approves a pending application directly, whatever the
// state of its documents. Approved and rejected applications are final.
func (s *Service) ApproveApplication(ctx context.Context, appID uuid.UUID, adminID, notes string) error {
	var unresolved int

	app, err := s.update(ctx, appID, "approve_application", func(app *models.NGOApplication) error {
		if app.VerificationStatus != models.StatusPending {
			return fmt.Errorf("%w: application is %s", ErrAlreadyDecided, app.VerificationStatus)
		}

		now := s.now()
		app.VerificationStatus = models.StatusApproved
		app.RejectionReason = ""
		app.ReviewNotes = strings.TrimSpace(notes)
		app.ReviewedBy = adminID
		app.ReviewedAt = &now

		unresolved = len(models.RequiredDocumentTypes) - app.CountDocuments(models.StatusApproved)
		return nil
	})
	if err != nil {
		return err
	}

	telemetry.GetMetrics().ApplicationDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(models.StatusApproved)),
	))

	if unresolved > 0 {
		log.Warn().
			Str("app_id", appID.String()).
			Str("reviewer_id", adminID).
			Int("pending_documents", app.CountDocuments(models.StatusPending)).
			Int("rejected_documents", app.CountDocuments(models.StatusRejected)).
			Msg("Application approved by admin override with unapproved documents")
	}

	log.Info().
		Str("app_id", appID.String()).
		Str("reviewer_id", adminID).
		Str("outcome", string(models.StatusApproved)).
		Msg("Application approved")

	s.notifier.Publish(notify.Event{
		ApplicationID:    app.ID,
		Email:            app.Email,
		OrganizationName: app.OrganizationName,
		Outcome:          notify.OutcomeApplicationApproved,
	})

	return nil
}

// RejectApplication rejects a pending application with a mandatory reason.
// The rejection is terminal for login regardless of document state.
func (s *Service) RejectApplication(ctx context.Context, appID uuid.UUID, adminID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrMissingReason
	}

	app, err := s.update(ctx, appID, "reject_application", func(app *models.NGOApplication) error {
		if app.VerificationStatus != models.StatusPending {
			return fmt.Errorf("%w: application is %s", ErrAlreadyDecided, app.VerificationStatus)
		}

		now := s.now()
		app.VerificationStatus = models.StatusRejected
		app.RejectionReason = reason
		app.ReviewedBy = adminID
		app.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	telemetry.GetMetrics().ApplicationDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(models.StatusRejected)),
	))

	log.Info().
		Str("app_id", appID.String()).
		Str("reviewer_id", adminID).
		Str("outcome", string(models.StatusRejected)).
		Str("reason", reason).
		Msg("Application rejected")

	s.notifier.Publish(notify.Event{
		ApplicationID:    app.ID,
		Email:            app.Email,
		OrganizationName: app.OrganizationName,
		Outcome:          notify.OutcomeApplicationRejected,
		Reason:           reason,
	})

	return nil
}
