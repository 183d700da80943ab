package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/trustbridge/ngoverify/internal/auth"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
	"github.com/trustbridge/ngoverify/internal/verification"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type listResponse struct {
	Applications []*models.NGOApplication `json:"applications"`
}

type approveDocumentResponse struct {
	AggregateApproved bool                   `json:"aggregateApproved"`
	Application       *models.NGOApplication `json:"application"`
}

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.ListFilter{Search: q.Get("q")}
	if status := q.Get("status"); status != "" && status != "all" {
		filter.Status = models.VerificationStatus(status)
		if !filter.Status.Valid() {
			writeError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, status))
			return
		}
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, r, fmt.Errorf("%w: bad limit %q", errBadRequest, limit))
			return
		}
		filter.Limit = n
	}

	apps, err := s.verify.ListByStatus(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if apps == nil {
		apps = []*models.NGOApplication{}
	}

	writeJSON(w, http.StatusOK, listResponse{Applications: apps})
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathApplicationID(w, r)
	if !ok {
		return
	}

	app, err := s.verify.GetApplication(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

func (s *Server) approveDocument(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathApplicationID(w, r)
	if !ok {
		return
	}

	aggregate, err := s.verify.ApproveDocument(r.Context(), appID, models.DocumentType(r.PathValue("docType")), reviewerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	app, err := s.verify.GetApplication(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, approveDocumentResponse{AggregateApproved: aggregate, Application: app})
}

func (s *Server) rejectDocument(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathApplicationID(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.verify.RejectDocument(r.Context(), appID, models.DocumentType(r.PathValue("docType")), req.Reason, reviewerID(r)); err != nil {
		writeError(w, r, err)
		return
	}

	s.writeApplication(w, r, appID)
}

func (s *Server) approveApplication(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathApplicationID(w, r)
	if !ok {
		return
	}

	var req notesRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.verify.ApproveApplication(r.Context(), appID, reviewerID(r), req.Notes); err != nil {
		writeError(w, r, err)
		return
	}

	s.writeApplication(w, r, appID)
}

func (s *Server) rejectApplication(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathApplicationID(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.verify.RejectApplication(r.Context(), appID, reviewerID(r), req.Reason); err != nil {
		writeError(w, r, err)
		return
	}

	s.writeApplication(w, r, appID)
}

func (s *Server) writeApplication(w http.ResponseWriter, r *http.Request, appID uuid.UUID) {
	app, err := s.verify.GetApplication(r.Context(), appID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// pathApplicationID parses {id}. An id that is not a UUID cannot exist.
func pathApplicationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	appID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %q", verification.ErrNotFound, r.PathValue("id")))
		return uuid.Nil, false
	}
	return appID, true
}

func reviewerID(r *http.Request) string {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return p.AccountID.String()
	}
	return ""
}

// decodeOptionalJSON decodes a JSON body, treating an empty body as zero values.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := decodeJSON(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
