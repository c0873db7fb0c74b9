// Package core defines the domain types shared across the briefing pipeline.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Category identifies one of the four content streams.
type Category string

const (
	CategoryNews      Category = "news"
	CategoryResearch  Category = "research"
	CategorySocial    Category = "social"
	CategoryCommunity Category = "community"
)

// Categories lists every category in presentation order.
var Categories = []Category{CategoryNews, CategoryResearch, CategorySocial, CategoryCommunity}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryNews, CategoryResearch, CategorySocial, CategoryCommunity:
		return true
	}
	return false
}

// SourceKind identifies how a source is fetched.
type SourceKind string

const (
	SourceKindRSS      SourceKind = "rss"
	SourceKindAPI      SourceKind = "api"
	SourceKindForum    SourceKind = "forum"
	SourceKindPreprint SourceKind = "preprint"
)

// rankPreference orders source kinds for ranking tie-breaks.
// Preprints outrank feeds, feeds outrank forums, forums outrank microblogs.
var rankPreference = map[SourceKind]int{
	SourceKindPreprint: 0,
	SourceKindRSS:      1,
	SourceKindForum:    2,
	SourceKindAPI:      3,
}

// RankPreference returns the tie-break rank for a source kind (lower wins).
func RankPreference(k SourceKind) int {
	if r, ok := rankPreference[k]; ok {
		return r
	}
	return len(rankPreference)
}

// Status is the health of a source, platform, category, or the whole run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Worse returns the more severe of two statuses. Skipped does not degrade.
func Worse(a, b Status) Status {
	sev := func(s Status) int {
		switch s {
		case StatusFailed:
			return 2
		case StatusPartial:
			return 1
		default:
			return 0
		}
	}
	if sev(b) > sev(a) {
		return b
	}
	return a
}

// Item is a single piece of gathered content.
type Item struct {
	ID          string            `json:"id"`           // 12 lowercase hex chars of the content fingerprint
	Category    Category          `json:"category"`     // Owning category
	SourceName  string            `json:"source_name"`  // Human-readable source identifier
	SourceKind  SourceKind        `json:"source_kind"`  // How the source was fetched
	URL         string            `json:"url"`          // Canonical item URL
	Title       string            `json:"title"`        // Item title
	Content     string            `json:"content"`      // Sanitized plain text, never raw HTML
	Author      string            `json:"author,omitempty"`
	PublishedAt time.Time         `json:"published_at"` // UTC
	CollectedAt time.Time         `json:"collected_at"` // UTC
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Analysis fields populated by the analyzer map phase.
	Score      int      `json:"score"`             // 0-100 relevance score
	Summary    string   `json:"summary,omitempty"` // Per-item summary
	ThemesTags []string `json:"themes_tags,omitempty"`
}

// FingerprintID derives the deterministic item id from the normalized URL
// and title: the first 12 hex chars of sha256(normalizedURL + "\n" + title).
func FingerprintID(rawURL, title string) string {
	sum := sha256.Sum256([]byte(NormalizeURL(rawURL) + "\n" + title))
	return hex.EncodeToString(sum[:])[:12]
}

// NormalizeURL lowercases the scheme and host, strips fragments, trailing
// slashes and common tracking parameters so republished links fingerprint
// identically.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.TrimSpace(rawURL), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "ref" || key == "fbclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// Source is one configured content source, immutable for the run.
type Source struct {
	Identifier string            `json:"identifier"` // URL, handle, or forum name
	Category   Category          `json:"category"`
	Kind       SourceKind        `json:"kind"`
	Params     map[string]string `json:"params,omitempty"`
}

// SourceStatus records the outcome of fetching one source.
type SourceStatus struct {
	Source    string `json:"source"`
	Status    Status `json:"status"`
	ItemCount int    `json:"item_count"`
	Error     string `json:"error,omitempty"`
	Notice    string `json:"notice,omitempty"`
}

// CategoryStatus aggregates source outcomes for one category.
type CategoryStatus struct {
	Category  Category       `json:"category"`
	Status    Status         `json:"status"`
	Sources   []SourceStatus `json:"sources,omitempty"`
	Platforms []SourceStatus `json:"platforms,omitempty"` // Social only
	Notice    string         `json:"notice,omitempty"`
	Truncated bool           `json:"truncated,omitempty"` // Run deadline hit mid-gather
	Dropped   int            `json:"dropped,omitempty"`   // Items discarded during parse/sanitize
}

// Theme is a named grouping of items within a category.
type Theme struct {
	Name        string `json:"name"`
	ItemCount   int    `json:"item_count"`
	Description string `json:"description"`
}

// CategoryReport is the analyzer output for one category.
type CategoryReport struct {
	Category        Category `json:"category"`
	Items           []Item   `json:"items"`
	Themes          []Theme  `json:"themes"`
	CategorySummary string   `json:"category_summary"`
	TopItems        []Item   `json:"top_items"`
	ItemCountTotal  int      `json:"item_count_total"`
	Status          Status   `json:"status"`
	Notice          string   `json:"notice,omitempty"`
}

// Topic is a cross-category development fused from multiple reports.
type Topic struct {
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	CategoryMix       map[Category]int `json:"category_mix"`
	ReferencedItemIDs []string         `json:"referenced_item_ids"`
}

// PhaseUsage is the token spend recorded for one pipeline phase.
type PhaseUsage struct {
	Phase           string  `json:"phase"`
	Calls           int     `json:"calls"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	ReasoningTokens int     `json:"reasoning_tokens"`
	EstimatedUSD    float64 `json:"estimated_usd"`
}

// CostSummary is the whole-run token and money accounting.
type CostSummary struct {
	Phases          []PhaseUsage `json:"phases"`
	InputTokens     int          `json:"input_tokens"`
	OutputTokens    int          `json:"output_tokens"`
	ReasoningTokens int          `json:"reasoning_tokens"`
	EstimatedUSD    float64      `json:"estimated_usd"`
}

// CollectionStatus is the per-source and overall gathering outcome.
type CollectionStatus struct {
	Overall    Status           `json:"overall"`
	Categories []CategoryStatus `json:"categories"`
	Dropped    int              `json:"dropped"` // Items discarded during parse/sanitize
}

// DayReport is the terminal artifact of a pipeline run.
type DayReport struct {
	RunID            string                      `json:"run_id"`      // Unique per pipeline execution
	ReportDate       string                      `json:"report_date"` // YYYY-MM-DD
	CoverageStart    time.Time                   `json:"coverage_start"`
	CoverageEnd      time.Time                   `json:"coverage_end"`
	ExecutiveSummary []string                    `json:"executive_summary"`
	TopTopics        []Topic                     `json:"top_topics"`
	Categories       map[Category]CategoryReport `json:"categories"`
	CollectionStatus CollectionStatus            `json:"collection_status"`
	HeroImagePrompt  string                      `json:"hero_image_prompt,omitempty"`
	HeroImageURL     string                      `json:"hero_image_url,omitempty"`
	CostSummary      CostSummary                 `json:"cost_summary"`

	// HeroImage holds the raw bytes until the render step writes them out.
	// Excluded from JSON so summary.json stays small.
	HeroImage []byte `json:"-"`
}

// EcosystemReleaseSource distinguishes how a release entry was obtained.
type EcosystemReleaseSource string

const (
	ReleaseSourceCurated      EcosystemReleaseSource = "curated"
	ReleaseSourceAutoDetected EcosystemReleaseSource = "auto_detected"
	ReleaseSourceRegistry     EcosystemReleaseSource = "external_registry"
)

// EcosystemRelease is one model-release entry in the grounding timeline.
type EcosystemRelease struct {
	Vendor     string                 `json:"vendor" yaml:"vendor"`
	ModelName  string                 `json:"model_name" yaml:"model_name"`
	GADate     string                 `json:"general_availability_date,omitempty" yaml:"general_availability_date,omitempty"`
	APIDate    string                 `json:"api_availability_date,omitempty" yaml:"api_availability_date,omitempty"`
	Confidence float64                `json:"confidence" yaml:"confidence"`
	Source     EcosystemReleaseSource `json:"source" yaml:"source"`
}

// CoverageWindow is the 24-hour local-time interval a run summarizes.
type CoverageWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window (inclusive bounds).
func (w CoverageWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
