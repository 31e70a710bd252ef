package extractor

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var contentPageFile = regexp.MustCompile(`Content_page_(\d+)`)

// PDF extracts the decoded page content streams with pdfcpu and reads the
// text-showing operators out of them.
type PDF struct {
	TempDir string
}

func NewPDF() *PDF {
	return &PDF{TempDir: os.TempDir()}
}

func (p *PDF) Extract(ctx context.Context, raw []byte) (string, error) {
	workDir, err := os.MkdirTemp(p.TempDir, "docqa-pdf-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	inFile := filepath.Join(workDir, "in.pdf")
	if err := os.WriteFile(inFile, raw, 0o600); err != nil {
		return "", err
	}

	pdfCtx, err := api.ReadContextFile(inFile)
	if err != nil {
		return "", corrupt("unreadable pdf", err)
	}
	pageCount := pdfCtx.PageCount

	if err := ctx.Err(); err != nil {
		return "", err
	}

	outDir := filepath.Join(workDir, "pages")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return "", err
	}
	if err := api.ExtractContentFile(inFile, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return "", corrupt("extract pdf content", err)
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsDir() {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	pageTexts := make(map[int]*strings.Builder)
	for _, name := range names {
		m := contentPageFile.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		pageNum, _ := strconv.Atoi(m[1])
		content, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return "", err
		}
		b, ok := pageTexts[pageNum]
		if !ok {
			b = &strings.Builder{}
			pageTexts[pageNum] = b
		}
		b.WriteString(textFromContentStream(content))
	}

	var full strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		b, ok := pageTexts[pageNum]
		if !ok {
			continue
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString("\n\n")
		}
		full.WriteString(text)
	}
	return full.String(), nil
}
