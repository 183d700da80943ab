package verification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/blob"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/telemetry"
	"github.com/trustbridge/ngoverify/internal/validate"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ResubmitDocument replaces a rejected document with a new upload and puts it
// back into review. Sibling documents and the application status are untouched.
func (s *Service) ResubmitDocument(ctx context.Context, appID uuid.UUID, docType models.DocumentType, file validate.File) error {
	docType, err := parseDocType(docType)
	if err != nil {
		return err
	}

	contentType, err := validate.Document(file)
	if err != nil {
		return err
	}

	// check before uploading so a doomed request leaves no blob behind
	current, err := s.GetApplication(ctx, appID)
	if err != nil {
		return err
	}
	if err := requireRejected(current, docType); err != nil {
		return err
	}

	key := blob.NewKey(string(docType))
	if err := s.blobs.Put(ctx, key, contentType, file.Data); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}

	var previous string
	_, err = s.update(ctx, appID, "resubmit_document", func(app *models.NGOApplication) error {
		if err := requireRejected(app, docType); err != nil {
			return err
		}

		doc := app.Document(docType)
		previous = doc.Filename

		doc.Filename = key
		doc.OriginalName = file.Name
		doc.ContentType = contentType
		doc.SizeBytes = int64(len(file.Data))
		doc.UploadedAt = s.now()
		doc.Status = models.StatusPending
		doc.RejectionReason = ""
		doc.ReviewedBy = ""
		doc.ReviewedAt = nil
		return nil
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("Failed to remove unused document upload")
		}
		return err
	}

	telemetry.GetMetrics().ResubmissionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("doc_type", string(docType)),
	))

	log.Info().
		Str("app_id", appID.String()).
		Str("doc_type", string(docType)).
		Str("outcome", "resubmitted").
		Str("previous_key", previous).
		Str("key", key).
		Msg("Document resubmitted")

	return nil
}

func requireRejected(app *models.NGOApplication, docType models.DocumentType) error {
	doc := app.Document(docType)
	if doc == nil {
		return fmt.Errorf("%w: %s not on application", ErrInvalidDocType, docType)
	}
	// the gate answers from the final decision, a new file could not change it
	if app.VerificationStatus != models.StatusPending {
		return fmt.Errorf("%w: application is %s", ErrAlreadyDecided, app.VerificationStatus)
	}
	if doc.Status != models.StatusRejected {
		return fmt.Errorf("%w: %s is %s", ErrNotRejected, docType, doc.Status)
	}
	return nil
}
