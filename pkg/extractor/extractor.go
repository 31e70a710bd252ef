package extractor

import (
	"context"
	"strings"

	"ai-docqa-be/pkg/apperr"
)

// Extractor turns raw file bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

// Registry routes a declared file type to its extractor.
type Registry struct {
	byType map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Extractor)}
}

// NewDefaultRegistry knows txt, md, pdf, docx and doc. Legacy .doc files go
// through the docx reader and fail as corrupt unless they are OOXML inside.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	plain := PlainText{}
	r.Register("txt", plain)
	r.Register("md", plain)
	r.Register("pdf", NewPDF())
	r.Register("docx", Docx{})
	r.Register("doc", Docx{})
	return r
}

func normalizeType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}

func (r *Registry) Register(fileType string, e Extractor) {
	r.byType[normalizeType(fileType)] = e
}

func (r *Registry) Supports(fileType string) bool {
	_, ok := r.byType[normalizeType(fileType)]
	return ok
}

// Extract runs the extractor for fileType. Errors are of kind extraction with
// reason unsupported_format or corrupt_file.
func (r *Registry) Extract(ctx context.Context, raw []byte, fileType string) (string, error) {
	e, ok := r.byType[normalizeType(fileType)]
	if !ok {
		return "", &apperr.Error{Kind: apperr.KindExtraction, Reason: apperr.ReasonUnsupportedFormat, Message: "no extractor for type " + fileType}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Extract(ctx, raw)
}

func corrupt(message string, cause error) error {
	return &apperr.Error{Kind: apperr.KindExtraction, Reason: apperr.ReasonCorruptFile, Message: message, Cause: cause}
}
