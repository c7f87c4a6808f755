// Package report renders a session's final Markdown report into the
// alternate output_format the API surface offers (`md` or `pdf`).
// Markdown is returned as-is; PDF rendering
// is a deliberately simple one-paragraph-per-block layout, not a full
// Markdown-to-PDF typesetter.
package report

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/unidoc/unipdf/v3/creator"
)

// RenderPDF lays markdown out as a sequence of paragraphs, one per
// blank-line-separated block, with a larger font on lines that look like
// a Markdown heading (leading '#'). It returns the serialized PDF bytes.
func RenderPDF(title, markdown string) ([]byte, error) {
	c := creator.New()
	c.SetPageMargins(50, 50, 50, 70)

	heading := c.NewStyledParagraph()
	heading.SetText(title)
	heading.Style.FontSize = 20
	if err := c.Draw(heading); err != nil {
		return nil, fmt.Errorf("report: draw title: %w", err)
	}

	for _, block := range splitBlocks(markdown) {
		p := c.NewStyledParagraph()
		text, fontSize := block, 11.0
		if stripped, ok := headingText(block); ok {
			text, fontSize = stripped, 15.0
		}
		p.SetText(text)
		p.Style.FontSize = fontSize
		p.SetMargins(0, 0, 4, 10)
		if err := c.Draw(p); err != nil {
			return nil, fmt.Errorf("report: draw block: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		return nil, fmt.Errorf("report: write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// splitBlocks splits markdown into blank-line-separated blocks, collapsing
// interior newlines to spaces so each block renders as one paragraph.
func splitBlocks(markdown string) []string {
	var blocks []string
	var cur []string

	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, " "))
			cur = nil
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return blocks
}

func headingText(block string) (string, bool) {
	trimmed := strings.TrimLeft(block, "#")
	if len(trimmed) == len(block) {
		return block, false
	}
	return strings.TrimSpace(trimmed), true
}
