package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the review state of an application or one of its documents.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusApproved VerificationStatus = "approved"
	StatusRejected VerificationStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s VerificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// DocumentType identifies one of the supporting documents every organization must supply.
type DocumentType string

const (
	DocRegistrationCertificate DocumentType = "registrationCertificate"
	DocTaxExemptionCertificate DocumentType = "taxExemptionCertificate"
	DocOrganizationalLicense   DocumentType = "organizationalLicense"
)

// RequiredDocumentTypes is the closed set of documents, in display order.
var RequiredDocumentTypes = []DocumentType{
	DocRegistrationCertificate,
	DocTaxExemptionCertificate,
	DocOrganizationalLicense,
}

// ParseDocumentType returns the DocumentType for s, or false if s is not a required type.
func ParseDocumentType(s string) (DocumentType, bool) {
	for _, dt := range RequiredDocumentTypes {
		if string(dt) == s {
			return dt, true
		}
	}
	return "", false
}

// Location is the optional postal location of an organization.
type Location struct {
	Address string `json:"address,omitempty" dynamodbav:"address,omitempty"`
	City    string `json:"city,omitempty" dynamodbav:"city,omitempty"`
	State   string `json:"state,omitempty" dynamodbav:"state,omitempty"`
	Country string `json:"country,omitempty" dynamodbav:"country,omitempty"`
}

// DocumentRecord is the review state of a single supporting document.
type DocumentRecord struct {
	Filename        string             `json:"filename" dynamodbav:"filename"` // opaque blob store key
	OriginalName    string             `json:"originalName,omitempty" dynamodbav:"original_name,omitempty"`
	ContentType     string             `json:"contentType,omitempty" dynamodbav:"content_type,omitempty"`
	SizeBytes       int64              `json:"sizeBytes,omitempty" dynamodbav:"size_bytes,omitempty"`
	UploadedAt      time.Time          `json:"uploadedAt" dynamodbav:"uploaded_at"`
	Status          VerificationStatus `json:"status" dynamodbav:"status"`
	RejectionReason string             `json:"rejectionReason,omitempty" dynamodbav:"rejection_reason,omitempty"`
	ReviewedBy      string             `json:"reviewedBy,omitempty" dynamodbav:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time         `json:"reviewedAt,omitempty" dynamodbav:"reviewed_at,omitempty"`
}

// NGOApplication is the verification record of one organization.
// Documents always holds exactly the RequiredDocumentTypes keys.
type NGOApplication struct {
	ID                 uuid.UUID `json:"id"`
	OrganizationName   string    `json:"organizationName"`
	ContactName        string    `json:"contactName"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone,omitempty"`
	Website            string    `json:"website,omitempty"`
	RegistrationNumber string    `json:"registrationNumber,omitempty"`
	Location           Location  `json:"location"`
	OrganizationType   string    `json:"organizationType,omitempty"`
	Description        string    `json:"description,omitempty"`

	VerificationStatus VerificationStatus `json:"verificationStatus"`
	RejectionReason    string             `json:"rejectionReason,omitempty"` // set only by an admin rejection
	ReviewNotes        string             `json:"reviewNotes,omitempty"`
	ReviewedBy         string             `json:"reviewedBy,omitempty"`

	Documents map[DocumentType]*DocumentRecord `json:"documents"`

	// Version is the optimistic concurrency token. Stores bump it on every write.
	Version int64 `json:"version"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
}

// Clone returns a deep copy so callers can mutate without affecting shared state.
func (a *NGOApplication) Clone() *NGOApplication {
	clone := *a
	if a.ReviewedAt != nil {
		t := *a.ReviewedAt
		clone.ReviewedAt = &t
	}
	clone.Documents = make(map[DocumentType]*DocumentRecord, len(a.Documents))
	for dt, doc := range a.Documents {
		if doc == nil {
			continue
		}
		d := *doc
		if doc.ReviewedAt != nil {
			t := *doc.ReviewedAt
			d.ReviewedAt = &t
		}
		clone.Documents[dt] = &d
	}
	return &clone
}

// Document returns the record for dt, or nil.
func (a *NGOApplication) Document(dt DocumentType) *DocumentRecord {
	return a.Documents[dt]
}

// AllDocumentsApproved reports whether every required document is approved.
func (a *NGOApplication) AllDocumentsApproved() bool {
	for _, dt := range RequiredDocumentTypes {
		doc := a.Documents[dt]
		if doc == nil || doc.Status != StatusApproved {
			return false
		}
	}
	return true
}

// RejectedDocumentTypes returns the rejected documents in RequiredDocumentTypes order.
func (a *NGOApplication) RejectedDocumentTypes() []DocumentType {
	var out []DocumentType
	for _, dt := range RequiredDocumentTypes {
		if doc := a.Documents[dt]; doc != nil && doc.Status == StatusRejected {
			out = append(out, dt)
		}
	}
	return out
}

// CountDocuments returns how many required documents are in status s.
func (a *NGOApplication) CountDocuments(s VerificationStatus) int {
	n := 0
	for _, dt := range RequiredDocumentTypes {
		if doc := a.Documents[dt]; doc != nil && doc.Status == s {
			n++
		}
	}
	return n
}
