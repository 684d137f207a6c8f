package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/text/unicode/norm"
)

// ExtractedDoc is the clean-text view of a fetched page.
type ExtractedDoc struct {
	Title       string
	Text        string
	Description string
	Language    string
}

// ContentExtractor converts raw markup into clean text. The default
// implementation is readability-based; tests substitute their own.
type ContentExtractor interface {
	Extract(html []byte, pageURL *url.URL) (ExtractedDoc, error)
}

// DocConverter converts a binary document (PDF) into marked-up text. The
// conversion itself is an external capability; the crawler only classifies
// and delegates.
type DocConverter interface {
	Convert(data []byte) (string, error)
}

// ReadabilityExtractor extracts article text with go-readability and falls
// back to a plain goquery text walk when readability yields nothing. Metadata
// (title, description, language) always comes from the document head.
type ReadabilityExtractor struct{}

func (ReadabilityExtractor) Extract(html []byte, pageURL *url.URL) (ExtractedDoc, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ExtractedDoc{}, fmt.Errorf("parse html: %w", err)
	}

	out := ExtractedDoc{
		Title:       normalizeLine(doc.Find("title").First().Text()),
		Description: normalizeLine(doc.Find(`meta[name="description"]`).First().AttrOr("content", "")),
		Language:    strings.TrimSpace(doc.Find("html").First().AttrOr("lang", "")),
	}

	article, err := readability.FromReader(bytes.NewReader(html), pageURL)
	text := ""
	if err == nil {
		text = article.TextContent
		if out.Title == "" {
			out.Title = normalizeLine(article.Title)
		}
	}
	if strings.TrimSpace(text) == "" {
		// Readability found no article body; strip chrome and take what's left.
		doc.Find("script,style,nav,footer,header,aside").Remove()
		text = doc.Find("body").Text()
	}
	out.Text = normalizeText(text)
	return out, nil
}

// UnsupportedConverter is the default DocConverter when no external
// conversion capability is wired in.
type UnsupportedConverter struct{}

func (UnsupportedConverter) Convert([]byte) (string, error) {
	return "", fmt.Errorf("pdf conversion not configured")
}

// errorVocabulary are phrases that mark a short page as an error page. The
// match is only applied below the error-page ceiling so long pages that
// mention "404" in passing are never rejected.
var errorVocabulary = []string{
	"woops",
	"oops",
	"404",
	"not found",
	"page not found",
	"access denied",
	"forbidden",
	"403",
}

// ValidContent reports whether extracted content passes the quality gate:
// at least minChars characters, and no error-page phrase when the content is
// shorter than errorCeiling.
func ValidContent(content string, minChars, errorCeiling int) bool {
	if len(content) < minChars {
		return false
	}
	if len(content) >= errorCeiling {
		return true
	}
	lower := strings.ToLower(content)
	for _, phrase := range errorVocabulary {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

var redditURLPattern = regexp.MustCompile(`(?i)^(https?://)(www\.)?(reddit\.com)(.*)$`)

// RewriteRedditURL rewrites reddit.com addresses to the old.reddit.com mirror,
// which serves plain HTML and yields far better extraction. Non-reddit URLs
// pass through unchanged.
func RewriteRedditURL(raw string) string {
	m := redditURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	return m[1] + "old.reddit.com" + m[4]
}

var multiSpace = regexp.MustCompile(`\s{2,}`)

// normalizeText applies NFKC normalization per line, collapses space runs,
// drops blank lines and strips symbol runes (emoji).
func normalizeText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(norm.NFKC.String(line))
		if line == "" {
			continue
		}
		lines = append(lines, multiSpace.ReplaceAllString(line, " "))
	}
	return stripSymbols(strings.Join(lines, "\n"))
}

func normalizeLine(s string) string {
	return stripSymbols(strings.TrimSpace(norm.NFKC.String(s)))
}

func stripSymbols(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.So, r) {
			return -1
		}
		return r
	}, s)
}

// GenerateExcerpt accumulates whole lines up to maxLength characters,
// appending an ellipsis when the content is cut.
func GenerateExcerpt(content string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 200
	}
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if b.Len()+len(line)+1 < maxLength {
			b.WriteString(line)
			b.WriteString("\n")
			continue
		}
		remaining := maxLength - b.Len() - 4
		if remaining > 0 {
			if remaining > len(line) {
				remaining = len(line)
			}
			b.WriteString(line[:remaining])
			b.WriteString(" ...")
		}
		break
	}
	excerpt := strings.TrimSpace(b.String())
	if excerpt == "" {
		if len(content) > maxLength {
			return content[:maxLength] + "..."
		}
		return content
	}
	return excerpt
}

// TruncateWords bounds text to wordLimit whitespace-separated tokens.
func TruncateWords(text string, wordLimit int) string {
	tokens := strings.Fields(text)
	if len(tokens) <= wordLimit {
		return text
	}
	return strings.Join(tokens[:wordLimit], " ") + "..."
}
