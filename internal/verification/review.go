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

// ApproveDocument approves a pending document. When this approval leaves every
// required document approved and the application is still pending, the
// application is approved in the same write and aggregateApproved is true.
func (s *Service) ApproveDocument(ctx context.Context, appID uuid.UUID, docType models.DocumentType, reviewerID string) (aggregateApproved bool, err error) {
	docType, err = parseDocType(docType)
	if err != nil {
		return false, err
	}

	app, err := s.update(ctx, appID, "approve_document", func(app *models.NGOApplication) error {
		aggregateApproved = false

		doc := app.Document(docType)
		if doc == nil {
			return fmt.Errorf("%w: %s not on application", ErrInvalidDocType, docType)
		}
		if doc.Status != models.StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, docType, doc.Status)
		}

		now := s.now()
		doc.Status = models.StatusApproved
		doc.RejectionReason = ""
		doc.ReviewedBy = reviewerID
		doc.ReviewedAt = &now

		// only a pending application is promoted; an admin rejection stands
		if app.VerificationStatus == models.StatusPending && app.AllDocumentsApproved() {
			app.VerificationStatus = models.StatusApproved
			app.ReviewedAt = &now
			aggregateApproved = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	m := telemetry.GetMetrics()
	m.DocumentDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("doc_type", string(docType)),
		attribute.String("outcome", string(models.StatusApproved)),
	))

	log.Info().
		Str("app_id", appID.String()).
		Str("doc_type", string(docType)).
		Str("reviewer_id", reviewerID).
		Str("outcome", string(models.StatusApproved)).
		Bool("aggregate_approved", aggregateApproved).
		Msg("Document approved")

	if aggregateApproved {
		m.AggregateApprovalsTotal.Add(ctx, 1)
		log.Info().
			Str("app_id", appID.String()).
			Str("reviewer_id", reviewerID).
			Msg("All documents approved, application approved")

		s.notifier.Publish(notify.Event{
			ApplicationID:    app.ID,
			Email:            app.Email,
			OrganizationName: app.OrganizationName,
			Outcome:          notify.OutcomeApplicationApproved,
		})
	}

	return aggregateApproved, nil
}

// RejectDocument rejects a pending document with a mandatory reason. The
// application status is unchanged so the applicant can resubmit that document.
func (s *Service) RejectDocument(ctx context.Context, appID uuid.UUID, docType models.DocumentType, reason, reviewerID string) error {
	docType, err := parseDocType(docType)
	if err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrMissingReason
	}

	app, err := s.update(ctx, appID, "reject_document", func(app *models.NGOApplication) error {
		doc := app.Document(docType)
		if doc == nil {
			return fmt.Errorf("%w: %s not on application", ErrInvalidDocType, docType)
		}
		if doc.Status != models.StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, docType, doc.Status)
		}

		now := s.now()
		doc.Status = models.StatusRejected
		doc.RejectionReason = reason
		doc.ReviewedBy = reviewerID
		doc.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	telemetry.GetMetrics().DocumentDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("doc_type", string(docType)),
		attribute.String("outcome", string(models.StatusRejected)),
	))

	log.Info().
		Str("app_id", appID.String()).
		Str("doc_type", string(docType)).
		Str("reviewer_id", reviewerID).
		Str("outcome", string(models.StatusRejected)).
		Str("reason", reason).
		Msg("Document rejected")

	s.notifier.Publish(notify.Event{
		ApplicationID:    app.ID,
		Email:            app.Email,
		OrganizationName: app.OrganizationName,
		Outcome:          notify.OutcomeDocumentRejected,
		DocumentType:     docType,
		Reason:           reason,
	})

	return nil
}
