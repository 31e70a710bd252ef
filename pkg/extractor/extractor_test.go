package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"ai-docqa-be/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildPDF writes a one-page PDF with a correct xref table.
func buildPDF(t *testing.T, content string) []byte {
	t.Helper()
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestRegistry_Extract(t *testing.T) {
	r := NewDefaultRegistry()
	ctx := context.Background()

	tests := []struct {
		name     string
		fileType string
		raw      []byte
		want     string
		reason   apperr.Reason
	}{
		{"txt", "txt", []byte("hello\r\nworld"), "hello\nworld", apperr.ReasonNone},
		{"md with dot and case", ".MD", []byte("# Title"), "# Title", apperr.ReasonNone},
		{"bom stripped", "txt", append([]byte{0xEF, 0xBB, 0xBF}, "abc"...), "abc", apperr.ReasonNone},
		{"invalid utf8", "txt", []byte{0xff, 0xfe, 0xfd}, "", apperr.ReasonCorruptFile},
		{"unsupported", "xlsx", []byte("x"), "", apperr.ReasonUnsupportedFormat},
		{"docx garbage", "docx", []byte("not a zip"), "", apperr.ReasonCorruptFile},
		{"doc legacy binary", "doc", []byte{0xD0, 0xCF, 0x11, 0xE0}, "", apperr.ReasonCorruptFile},
		{"pdf garbage", "pdf", []byte("%PDF-nope"), "", apperr.ReasonCorruptFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Extract(ctx, tt.raw, tt.fileType)
			if tt.reason != apperr.ReasonNone {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperr.ErrExtraction))
				assert.Equal(t, tt.reason, apperr.ReasonOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Supports(t *testing.T) {
	r := NewDefaultRegistry()
	for _, ft := range []string{"pdf", "docx", "doc", "txt", "md", ".PDF"} {
		assert.True(t, r.Supports(ft), ft)
	}
	assert.False(t, r.Supports("exe"))
}

func TestDocx_Paragraphs(t *testing.T) {
	raw := buildDocx(t,
		`<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>world.</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:p><w:r><w:t>Col1</w:t><w:tab/><w:t>Col2</w:t></w:r></w:p>`)

	got, err := Docx{}.Extract(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Hello world.\nCol1\tCol2", got)
}

func TestDocx_MissingBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Docx{}.Extract(context.Background(), buf.Bytes())
	assert.True(t, errors.Is(err, apperr.ErrCorruptFile))
}

func TestTextFromContentStream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{"simple Tj", "BT /F1 12 Tf 72 712 Td (Hello world) Tj ET", "Hello world\n"},
		{"TJ with kerning gap", "BT [(Hel) 20 (lo) -300 (there)] TJ ET", "Hello there\n"},
		{"escapes and nesting", `BT (a \(b\) \\ c (d)) Tj ET`, "a (b) \\ c (d)\n"},
		{"octal escape", `BT (caf\351) Tj ET`, "café\n"},
		{"new line operators", "BT (one) Tj 0 -14 Td (two) Tj T* (three) Tj ET", "one\ntwo\nthree\n"},
		{"quote operator", "BT (first) Tj (second) ' ET", "first\nsecond\n"},
		{"hex utf16", "BT <FEFF00480069> Tj ET", "Hi\n"},
		{"hex latin1", "BT <4869> Tj ET", "Hi\n"},
		{"ignores comments and dicts", "% comment (nope) Tj\nBT << /MCID 0 >> BDC (yes) Tj EMC ET", "yes\n"},
		{"non text operators", "q 1 0 0 1 0 0 cm 0 0 m 10 10 l S Q", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, textFromContentStream([]byte(tt.stream)))
		})
	}
}

func TestPDF_Extract(t *testing.T) {
	raw := buildPDF(t, "BT /F1 12 Tf 72 712 Td (Quarterly revenue grew.) Tj 0 -14 Td (Costs fell.) Tj ET")

	p := &PDF{TempDir: t.TempDir()}
	got, err := p.Extract(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, got, "Quarterly revenue grew.")
	assert.Contains(t, got, "Costs fell.")
}
