package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

const docxBodyPart = "word/document.xml"

// Docx pulls paragraph text out of word/document.xml.
type Docx struct{}

func (Docx) Extract(ctx context.Context, raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", corrupt("not a docx archive", err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", corrupt("docx has no "+docxBodyPart, nil)
	}

	rc, err := part.Open()
	if err != nil {
		return "", corrupt("open "+docxBodyPart, err)
	}
	defer rc.Close()

	text, err := docxText(ctx, rc)
	if err != nil {
		return "", corrupt("parse "+docxBodyPart, err)
	}
	return text, nil
}

// docxText walks the WordprocessingML token stream. Runs inside a paragraph
// are concatenated; paragraphs are separated by newlines.
func docxText(ctx context.Context, r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		sb     strings.Builder
		inText bool
		para   strings.Builder
	)
	flush := func() {
		line := strings.TrimRight(para.String(), " \t")
		para.Reset()
		if line == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}

	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flush()
	return sb.String(), nil
}
