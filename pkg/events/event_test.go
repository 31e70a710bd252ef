package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentStatusType(t *testing.T) {
	tests := map[string]string{
		"pending":    "DOCUMENT_PENDING",
		"processing": "DOCUMENT_PROCESSING",
		"completed":  "DOCUMENT_COMPLETED",
		"failed":     "DOCUMENT_FAILED",
	}
	for in, want := range tests {
		assert.Equal(t, want, DocumentStatusType(in))
	}
}
