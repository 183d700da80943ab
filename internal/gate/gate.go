// Package gate decides whether an organization may sign in, based on the
// verification state of its application.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
	"github.com/trustbridge/ngoverify/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Code is the outcome of a login-time check.
type Code string

const (
	CodeAllowed           Code = "ALLOWED"
	CodePendingApproval   Code = "PENDING_APPROVAL"
	CodeDocumentsRejected Code = "DOCUMENTS_REJECTED"
	CodeRejected          Code = "REJECTED"
)

// RejectedDocument is one entry of a DOCUMENTS_REJECTED payload.
type RejectedDocument struct {
	DocType         models.DocumentType `json:"docType"`
	RejectionReason string              `json:"rejectionReason"`
}

// Decision is the classification of an application at login.
type Decision struct {
	Code              Code               `json:"code"`
	OrganizationName  string             `json:"organizationName,omitempty"`
	Email             string             `json:"email,omitempty"`
	Reason            string             `json:"reason,omitempty"`
	RejectedDocuments []RejectedDocument `json:"rejectedDocuments,omitempty"`
}

// Allowed reports whether login may proceed.
func (d Decision) Allowed() bool {
	return d.Code == CodeAllowed
}

// Payload returns the structured detail returned to the client with a block.
func (d Decision) Payload() any {
	switch d.Code {
	case CodePendingApproval:
		return map[string]string{
			"organizationName": d.OrganizationName,
			"email":            d.Email,
		}
	case CodeDocumentsRejected:
		return d.RejectedDocuments
	case CodeRejected:
		if d.Reason != "" {
			return map[string]string{"reason": d.Reason}
		}
	}
	return nil
}

// Message is a human readable explanation of the decision.
func (d Decision) Message() string {
	switch d.Code {
	case CodePendingApproval:
		return "your organization is awaiting verification"
	case CodeDocumentsRejected:
		return "one or more documents were rejected, resubmit them to continue"
	case CodeRejected:
		if d.Reason != "" {
			return "your application was rejected: " + d.Reason
		}
		return "your application was rejected"
	}
	return "ok"
}

// Classify applies the login rules to app. The first matching rule wins:
// an admin rejection with a reason, then any rejected document, then a
// pending application, then approval. Anything else is rejected.
func Classify(app *models.NGOApplication) Decision {
	if app.VerificationStatus == models.StatusRejected && app.RejectionReason != "" {
		return Decision{Code: CodeRejected, Reason: app.RejectionReason}
	}

	if rejected := app.RejectedDocumentTypes(); len(rejected) > 0 {
		docs := make([]RejectedDocument, 0, len(rejected))
		for _, dt := range rejected {
			docs = append(docs, RejectedDocument{
				DocType:         dt,
				RejectionReason: app.Documents[dt].RejectionReason,
			})
		}
		return Decision{Code: CodeDocumentsRejected, RejectedDocuments: docs}
	}

	switch app.VerificationStatus {
	case models.StatusPending:
		return Decision{
			Code:             CodePendingApproval,
			OrganizationName: app.OrganizationName,
			Email:            app.Email,
		}
	case models.StatusApproved:
		return Decision{Code: CodeAllowed}
	}

	return Decision{Code: CodeRejected}
}

// Gate classifies applications read from a store.
type Gate struct {
	apps store.ApplicationStore
}

func New(apps store.ApplicationStore) *Gate {
	return &Gate{apps: apps}
}

// Check loads the application and classifies it. A missing application is
// returned as store.ErrApplicationNotFound.
func (g *Gate) Check(ctx context.Context, appID uuid.UUID) (Decision, error) {
	app, err := g.apps.Get(ctx, appID)
	if err != nil {
		if errors.Is(err, store.ErrApplicationNotFound) {
			return Decision{}, err
		}
		return Decision{}, fmt.Errorf("failed to load application: %w", err)
	}

	d := Classify(app)

	telemetry.GetMetrics().GateOutcomesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", string(d.Code)),
	))

	log.Debug().
		Str("app_id", appID.String()).
		Str("status", string(app.VerificationStatus)).
		Str("code", string(d.Code)).
		Msg("Gate decision")

	return d, nil
}
