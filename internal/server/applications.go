package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/trustbridge/ngoverify/internal/auth"
	httpmiddleware "github.com/trustbridge/ngoverify/internal/http"
	"github.com/trustbridge/ngoverify/internal/login"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/validate"
	"github.com/trustbridge/ngoverify/internal/verification"
)

// multipartMemory is how much of a multipart body is kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// createApplication handles a multipart registration: form fields named after
// the registration JSON keys plus one file part per document type.
func (s *Server) createApplication(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := verification.CreateApplicationInput{
		Registration: validate.Registration{
			OrganizationName:   r.FormValue("organizationName"),
			ContactName:        r.FormValue("contactName"),
			Email:              r.FormValue("email"),
			Password:           r.FormValue("password"),
			Phone:              r.FormValue("phone"),
			Website:            r.FormValue("website"),
			RegistrationNumber: r.FormValue("registrationNumber"),
			Address:            r.FormValue("address"),
			City:               r.FormValue("city"),
			State:              r.FormValue("state"),
			Country:            r.FormValue("country"),
			OrganizationType:   r.FormValue("organizationType"),
			Description:        r.FormValue("description"),
		},
		Documents: make(map[models.DocumentType]validate.File, len(r.MultipartForm.File)),
	}

	for field, headers := range r.MultipartForm.File {
		if len(headers) != 1 {
			writeError(w, r, fmt.Errorf("%w: expected one file for %s", errBadRequest, field))
			return
		}
		file, err := readFile(headers[0])
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.Documents[models.DocumentType(field)] = file
	}

	app, err := s.verify.CreateApplication(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, app)
}

// myApplication returns the caller's own application.
func (s *Server) myApplication(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	app, err := s.verify.GetApplication(r.Context(), *p.ApplicationID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// resubmitDocument replaces one rejected document with the multipart "file" part.
func (s *Server) resubmitDocument(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	docType := models.DocumentType(r.PathValue("docType"))

	if err := parseMultipart(r); err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	if len(headers) != 1 {
		writeError(w, r, fmt.Errorf("%w: expected exactly one file part named file", errBadRequest))
		return
	}
	file, err := readFile(headers[0])
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.verify.ResubmitDocument(r.Context(), *p.ApplicationID, docType, file); err != nil {
		writeError(w, r, err)
		return
	}

	app, err := s.verify.GetApplication(r.Context(), *p.ApplicationID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// requireOrganization authenticates an organization by HTTP Basic credentials
// or a bearer token. Bearer tokens are checked against the stored account so a
// token cannot outlive its account. Basic credentials skip the login gate so a blocked
// organization can still read its application and resubmit documents.
func (s *Server) requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var principal *auth.Principal

		if email, password, ok := r.BasicAuth(); ok {
			account, err := s.login.Authenticate(r.Context(), email, password, httpmiddleware.ClientIPFromContext(r.Context()))
			if err != nil {
				writeError(w, r, err)
				return
			}
			principal = &auth.Principal{
				AccountID:     account.AccountID,
				Role:          account.Role,
				ApplicationID: account.ApplicationID,
			}
		} else if token := auth.BearerToken(r); token != "" {
			p, err := s.tokens.Verify(token)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: %v", errUnauthorized, err))
				return
			}
			if _, err := s.login.Resolve(r.Context(), p); err != nil {
				if errors.Is(err, login.ErrStaleSession) {
					err = fmt.Errorf("%w: %v", errUnauthorized, err)
				}
				writeError(w, r, err)
				return
			}
			principal = p
		} else {
			writeError(w, r, errUnauthorized)
			return
		}

		if principal.Role != models.RoleOrganization || principal.ApplicationID == nil {
			writeError(w, r, errForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// readFile reads at most one byte past the document limit so oversize files
// reach the validator without being buffered whole.
func readFile(fh *multipart.FileHeader) (validate.File, error) {
	f, err := fh.Open()
	if err != nil {
		return validate.File{}, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, validate.MaxDocumentSize+1))
	if err != nil {
		return validate.File{}, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}

	return validate.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
