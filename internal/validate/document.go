// Package validate checks uploaded documents and registration fields before
// anything is written.
package validate

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxDocumentSize is the largest accepted upload.
const MaxDocumentSize = 5 << 20 // 5 MiB

var (
	ErrInvalidType = errors.New("invalid document type: only PDF, JPEG and PNG are accepted")
	ErrTooLarge    = errors.New("document exceeds 5 MiB")
)

var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// File is an uploaded document as received from the client.
type File struct {
	Name        string
	ContentType string // declared by the client; may be empty
	Data        []byte
}

// Document checks size and type of f. The declared content type, when
// present, and the sniffed type must both be allowed.
// It returns the sniffed content type on success.
func Document(f File) (string, error) {
	if len(f.Data) > MaxDocumentSize {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, f.Name, len(f.Data))
	}
	if len(f.Data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidType, f.Name)
	}

	if declared := normalizeContentType(f.ContentType); declared != "" && !allowedContentTypes[declared] {
		return "", fmt.Errorf("%w: %s declared as %s", ErrInvalidType, f.Name, declared)
	}

	detected := mimetype.Detect(f.Data)
	sniffed := normalizeContentType(detected.String())
	if !allowedContentTypes[sniffed] {
		return "", fmt.Errorf("%w: %s detected as %s", ErrInvalidType, f.Name, sniffed)
	}

	return sniffed, nil
}

// normalizeContentType strips parameters and treats the generic binary type as undeclared.
func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = strings.ToLower(ct)
	}
	if mediaType == "application/octet-stream" {
		return ""
	}
	return mediaType
}
