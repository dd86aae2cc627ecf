package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupportedFormat is returned for files whose text cannot be extracted.
var ErrUnsupportedFormat = errors.New("unsupported document format")

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// ExtractText converts raw file content of the given format to plain text.
// Line structure is kept so heading-aware splitters can still see it.
func ExtractText(format Format, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", ErrUnsupportedFormat)
	}

	switch format {
	case FormatText, FormatMarkdown:
		return NormalizeLines(string(raw)), nil
	case FormatHTML:
		return ExtractHTML(raw)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// ExtractHTML extracts readable text from an HTML page
func ExtractHTML(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Remove unwanted elements
	doc.Find("script, style, noscript, nav, footer, aside").Remove()

	var content strings.Builder

	title := strings.TrimSpace(doc.Find("title").Text())
	if title != "" {
		content.WriteString("# " + title + "\n\n")
	}

	body := doc.Find("main, article").First()
	if body.Length() == 0 {
		body = doc.Find("body")
	}

	blocks := 0
	body.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td").Each(func(i int, s *goquery.Selection) {
		// nested matches are emitted by their outermost block
		if s.ParentsFiltered("p, li, pre, blockquote, td").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		blocks++
		switch tag := goquery.NodeName(s); tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			content.WriteString(strings.Repeat("#", int(tag[1]-'0')) + " " + text + "\n\n")
		case "li":
			content.WriteString("- " + text + "\n")
		default:
			content.WriteString(text + "\n\n")
		}
	})

	// Pages without block markup still carry text
	if blocks == 0 {
		content.WriteString(body.Text())
	}

	return NormalizeLines(content.String()), nil
}

// NormalizeLines trims every line, drops carriage returns and collapses runs of blank lines.
func NormalizeLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// CleanText collapses every whitespace run to one space.
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
