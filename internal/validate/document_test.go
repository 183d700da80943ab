package validate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	pdfData  = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	pngData  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegData = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
)

func TestDocument(t *testing.T) {
	tests := []struct {
		name     string
		file     File
		wantType string
		wantErr  error
	}{
		{
			name:     "pdf",
			file:     File{Name: "cert.pdf", ContentType: "application/pdf", Data: pdfData},
			wantType: "application/pdf",
		},
		{
			name:     "png",
			file:     File{Name: "license.png", ContentType: "image/png", Data: pngData},
			wantType: "image/png",
		},
		{
			name:     "jpeg without declared type",
			file:     File{Name: "scan.jpg", Data: jpegData},
			wantType: "image/jpeg",
		},
		{
			name:     "octet-stream falls back to sniffing",
			file:     File{Name: "cert.pdf", ContentType: "application/octet-stream", Data: pdfData},
			wantType: "application/pdf",
		},
		{
			name:     "declared type with parameters",
			file:     File{Name: "cert.pdf", ContentType: "application/pdf; charset=binary", Data: pdfData},
			wantType: "application/pdf",
		},
		{
			name:    "declared type not allowed",
			file:    File{Name: "cert.docx", ContentType: "application/msword", Data: pdfData},
			wantErr: ErrInvalidType,
		},
		{
			name:    "content does not match allowed types",
			file:    File{Name: "cert.pdf", ContentType: "application/pdf", Data: []byte("just some text")},
			wantErr: ErrInvalidType,
		},
		{
			name:    "empty",
			file:    File{Name: "cert.pdf", ContentType: "application/pdf"},
			wantErr: ErrInvalidType,
		},
		{
			name:    "too large",
			file:    File{Name: "big.pdf", ContentType: "application/pdf", Data: append(pdfData, bytes.Repeat([]byte{'x'}, MaxDocumentSize)...)},
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Document(tt.file)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantType, got)
		})
	}
}

func TestDocumentExactlyMaxSize(t *testing.T) {
	data := append([]byte{}, pdfData...)
	data = append(data, bytes.Repeat([]byte{' '}, MaxDocumentSize-len(pdfData))...)
	require.Len(t, data, MaxDocumentSize)

	_, err := Document(File{Name: "edge.pdf", ContentType: "application/pdf", Data: data})
	require.NoError(t, err)
}
