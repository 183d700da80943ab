// Package notify delivers workflow outcome notifications to applicants
// asynchronously, after the decision has been committed.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/trustbridge/ngoverify/internal/models"
)

// Outcome is the kind of decision being announced.
type Outcome string

const (
	OutcomeApplicationApproved Outcome = "application_approved"
	OutcomeApplicationRejected Outcome = "application_rejected"
	OutcomeDocumentRejected    Outcome = "document_rejected"
)

// Event is a single notification to an applicant.
type Event struct {
	ApplicationID    uuid.UUID           `json:"applicationId"`
	Email            string              `json:"email"`
	OrganizationName string              `json:"organizationName"`
	Outcome          Outcome             `json:"outcome"`
	DocumentType     models.DocumentType `json:"documentType,omitempty"`
	Reason           string              `json:"reason,omitempty"`
}

// Subject is a short human readable summary of the event.
func (e Event) Subject() string {
	switch e.Outcome {
	case OutcomeApplicationApproved:
		return fmt.Sprintf("%s has been verified", e.OrganizationName)
	case OutcomeApplicationRejected:
		return fmt.Sprintf("%s verification was not approved", e.OrganizationName)
	case OutcomeDocumentRejected:
		return fmt.Sprintf("Action required: %s needs to be resubmitted", e.DocumentType)
	default:
		return string(e.Outcome)
	}
}

// Body is the plain text message body.
func (e Event) Body() string {
	switch e.Outcome {
	case OutcomeApplicationApproved:
		return fmt.Sprintf("Hello,\n\n%s has been approved. You can now sign in.\n", e.OrganizationName)
	case OutcomeApplicationRejected:
		return fmt.Sprintf("Hello,\n\nThe application for %s was rejected.\n\nReason: %s\n", e.OrganizationName, e.Reason)
	case OutcomeDocumentRejected:
		return fmt.Sprintf("Hello,\n\nThe %s submitted for %s was rejected.\n\nReason: %s\n\nPlease sign in and upload a replacement.\n",
			e.DocumentType, e.OrganizationName, e.Reason)
	default:
		return e.Subject()
	}
}

// Sender delivers one event. Implementations must be safe for use by a single goroutine.
type Sender interface {
	Send(ctx context.Context, event Event) error
}

// Publisher accepts events for asynchronous delivery. Publish must not block.
type Publisher interface {
	Publish(event Event)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
