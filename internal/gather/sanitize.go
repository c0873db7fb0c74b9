package gather

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxContentBytes caps the sanitized content of one item. Larger bodies
// are truncated at a rune boundary.
const MaxContentBytes = 10 * 1024

var collapseWhitespace = regexp.MustCompile(`\n{3,}`)

// SanitizeText strips any HTML from s and returns plain text. Script and
// style bodies are removed entirely, block elements become paragraph
// breaks, and the result is capped at MaxContentBytes.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<>") {
		return capBytes(collapse(s))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		// Unparseable markup: drop all tag-ish fragments the cheap way.
		return capBytes(collapse(stripTags(s)))
	}
	doc.Find("script, style, iframe, noscript, form").Remove()

	var sb strings.Builder
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	})
	if sb.Len() == 0 {
		sb.WriteString(doc.Text())
	}
	return capBytes(collapse(sb.String()))
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}

func collapse(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = collapseWhitespace.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func capBytes(s string) string {
	if len(s) <= MaxContentBytes {
		return s
	}
	cut := MaxContentBytes
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// ExtractArticle pulls the main text and title out of a fetched HTML page,
// removing navigation and boilerplate first.
func ExtractArticle(html string) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()

	title = strings.TrimSpace(doc.Find("head title").First().Text())
	if title == "" {
		title, _ = doc.Find("meta[property='og:title']").Attr("content")
		title = strings.TrimSpace(title)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	var sb strings.Builder
	for _, selector := range []string{"article", "main", "[role='main']", ".post-content", ".entry-content", "body"} {
		doc.Find(selector).First().Find("p, h1, h2, h3, li, blockquote, pre").Each(func(_ int, sel *goquery.Selection) {
			t := strings.TrimSpace(sel.Text())
			if t != "" {
				sb.WriteString(t)
				sb.WriteString("\n\n")
			}
		})
		if sb.Len() > 0 {
			break
		}
	}
	return title, capBytes(collapse(sb.String()))
}

// newGet builds a GET request with the given headers.
func newGet(ctx context.Context, url string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// readCapped reads at most max bytes from r.
func readCapped(r io.Reader, max int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, max))
}
