package gather

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeTextRemovesScripts(t *testing.T) {
	in := `<p>Real content</p><script>alert("xss")</script><style>.x{color:red}</style>`
	out := SanitizeText(in)
	if strings.Contains(out, "alert") || strings.Contains(out, "color") {
		t.Errorf("script or style body leaked: %q", out)
	}
	if !strings.Contains(out, "Real content") {
		t.Errorf("content lost: %q", out)
	}
}

func TestSanitizeTextPlainPassthrough(t *testing.T) {
	in := "Just plain text, no markup."
	if out := SanitizeText(in); out != in {
		t.Errorf("plain text changed: %q", out)
	}
}

func TestSanitizeTextBlockBreaks(t *testing.T) {
	in := "<h1>Head</h1><p>First</p><p>Second</p>"
	out := SanitizeText(in)
	for _, want := range []string{"Head", "First", "Second"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if !strings.Contains(out, "\n") {
		t.Errorf("block elements should separate: %q", out)
	}
}

func TestSanitizeTextCapsAtRuneBoundary(t *testing.T) {
	in := strings.Repeat("é", MaxContentBytes) // 2 bytes per rune
	out := SanitizeText(in)
	if len(out) > MaxContentBytes {
		t.Errorf("output %d bytes exceeds cap", len(out))
	}
	if !utf8.ValidString(out) {
		t.Error("cap split a rune")
	}
}

func TestSanitizeTextEmpty(t *testing.T) {
	if out := SanitizeText("   "); out != "" {
		t.Errorf("whitespace should sanitize to empty, got %q", out)
	}
}

func TestExtractArticle(t *testing.T) {
	html := `<html><head><title>The Headline</title></head><body>
		<nav>Home About</nav>
		<article><p>Lead paragraph.</p><p>Second paragraph.</p></article>
		<footer>copyright</footer></body></html>`

	title, text := ExtractArticle(html)
	if title != "The Headline" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(text, "Lead paragraph") || !strings.Contains(text, "Second paragraph") {
		t.Errorf("body lost: %q", text)
	}
	if strings.Contains(text, "Home About") || strings.Contains(text, "copyright") {
		t.Errorf("boilerplate leaked: %q", text)
	}
}

func TestExtractArticleOGTitleFallback(t *testing.T) {
	html := `<html><head><meta property="og:title" content="OG Title"></head>
		<body><article><p>Text.</p></article></body></html>`
	title, _ := ExtractArticle(html)
	if title != "OG Title" {
		t.Errorf("title = %q, want og:title fallback", title)
	}
}
