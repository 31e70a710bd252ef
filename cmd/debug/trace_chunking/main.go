// Command trace_chunking prints how a file is split into segments, so chunk
// boundaries can be checked by eye.
//
//	go run ./cmd/debug/trace_chunking path/to/file.pdf [chunkSize] [overlap]
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ai-docqa-be/pkg/extractor"
	"ai-docqa-be/pkg/rag/chunker"

	"github.com/fatih/color"
	"github.com/rivo/uniseg"
)

const previewChars = 60

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: trace_chunking <file> [chunkSize] [overlap]")
	}
	path := os.Args[1]

	var opts []chunker.Option
	if len(os.Args) > 2 {
		size, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid chunk size: %v", err)
		}
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if len(os.Args) > 3 {
		overlap, err := strconv.Atoi(os.Args[3])
		if err != nil {
			log.Fatalf("invalid overlap: %v", err)
		}
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	chk := chunker.New(opts...)

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}

	// 1. Extract
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	color.Cyan("--- EXTRACTING %s (%s) ---", filepath.Base(path), fileType)
	text, err := extractor.NewDefaultRegistry().Extract(context.Background(), raw, fileType)
	if err != nil {
		color.Red("Extraction failed: %v", err)
		os.Exit(1)
	}
	total := uniseg.GraphemeClusterCount(text)
	fmt.Printf("Extracted %d characters (%d bytes)\n", total, len(text))

	// 2. Chunk
	segments := chk.Chunk(text)
	color.Cyan("\n--- %d SEGMENTS (size %d, overlap %d) ---", len(segments), chk.ChunkSize(), chk.Overlap())

	problems := 0
	for i, seg := range segments {
		color.Yellow("[%d] [%d, %d) %d chars", seg.Index, seg.Start, seg.End, seg.Length())
		fmt.Printf("    head: %q\n", preview(seg.Text, false))
		fmt.Printf("    tail: %q\n", preview(seg.Text, true))

		if n := uniseg.GraphemeClusterCount(seg.Text); n != seg.Length() {
			color.Red("    text has %d characters, offsets say %d", n, seg.Length())
			problems++
		}
		if i == 0 {
			if seg.Start != 0 {
				color.Red("    first segment starts at %d", seg.Start)
				problems++
			}
			continue
		}
		if want := segments[i-1].End - chk.Overlap(); seg.Start != want {
			color.Red("    starts at %d, expected %d", seg.Start, want)
			problems++
		}
	}

	// 3. Verify coverage
	color.Cyan("\n--- COVERAGE ---")
	if len(segments) > 0 && segments[len(segments)-1].End != total {
		color.Red("last segment ends at %d of %d characters", segments[len(segments)-1].End, total)
		problems++
	}
	if problems > 0 {
		color.Red("%d problem(s) found", problems)
		os.Exit(1)
	}
	color.Green("All %d characters covered, overlaps consistent", total)
}

func preview(s string, tail bool) string {
	var chars []string
	g := uniseg.NewGraphemes(strings.ReplaceAll(s, "\n", " "))
	for g.Next() {
		chars = append(chars, g.Str())
	}
	switch {
	case len(chars) <= previewChars:
		return strings.Join(chars, "")
	case tail:
		return "..." + strings.Join(chars[len(chars)-previewChars:], "")
	default:
		return strings.Join(chars[:previewChars], "") + "..."
	}
}
