// Package render writes the run's artifacts under the web data root. All
// writes are atomic: a reader never observes a torn file, and a crashed
// run never corrupts a previous day's output.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dailybrief/internal/core"
	"dailybrief/internal/logger"
)

// DefaultRoot is where artifacts land relative to the working directory.
const DefaultRoot = "web/data"

const heroFileName = "hero.webp"

// Renderer writes briefing artifacts under a data root.
type Renderer struct {
	root string
}

// New builds a Renderer over root; empty means DefaultRoot.
func New(root string) *Renderer {
	if root == "" {
		root = DefaultRoot
	}
	return &Renderer{root: root}
}

// summaryCategory is a category's entry in summary.json: everything but
// the full item list, which lives in the per-category file.
type summaryCategory struct {
	Category        core.Category `json:"category"`
	Themes          []core.Theme  `json:"themes"`
	CategorySummary string        `json:"category_summary"`
	TopItems        []core.Item   `json:"top_items"`
	ItemCountTotal  int           `json:"item_count_total"`
	Status          core.Status   `json:"status"`
	Notice          string        `json:"notice,omitempty"`
}

type summaryDoc struct {
	ReportDate       string                           `json:"report_date"`
	CoverageStart    time.Time                        `json:"coverage_start"`
	CoverageEnd      time.Time                        `json:"coverage_end"`
	ExecutiveSummary []string                         `json:"executive_summary"`
	TopTopics        []core.Topic                     `json:"top_topics"`
	Categories       map[core.Category]summaryCategory `json:"categories"`
	CollectionStatus core.CollectionStatus            `json:"collection_status"`
	HeroImagePrompt  string                           `json:"hero_image_prompt,omitempty"`
	HeroImageURL     string                           `json:"hero_image_url,omitempty"`
	CostSummary      core.CostSummary                 `json:"cost_summary"`
}

// WriteReport writes the day directory: summary.json, one file per
// category with the full item list, and the hero image when present.
func (r *Renderer) WriteReport(report *core.DayReport) error {
	log := logger.Get()
	dir := filepath.Join(r.root, report.ReportDate)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("render: creating %s: %w", dir, err)
	}

	if len(report.HeroImage) > 0 {
		if err := atomicWrite(filepath.Join(dir, heroFileName), report.HeroImage); err != nil {
			return err
		}
		report.HeroImageURL = fmt.Sprintf("/data/%s/%s", report.ReportDate, heroFileName)
	}

	for category, catReport := range report.Categories {
		data, err := json.MarshalIndent(catReport, "", "  ")
		if err != nil {
			return fmt.Errorf("render: marshaling %s report: %w", category, err)
		}
		if err := atomicWrite(filepath.Join(dir, string(category)+".json"), data); err != nil {
			return err
		}
	}

	doc := summaryDoc{
		ReportDate:       report.ReportDate,
		CoverageStart:    report.CoverageStart,
		CoverageEnd:      report.CoverageEnd,
		ExecutiveSummary: report.ExecutiveSummary,
		TopTopics:        report.TopTopics,
		Categories:       make(map[core.Category]summaryCategory, len(report.Categories)),
		CollectionStatus: report.CollectionStatus,
		HeroImagePrompt:  report.HeroImagePrompt,
		HeroImageURL:     report.HeroImageURL,
		CostSummary:      report.CostSummary,
	}
	for category, catReport := range report.Categories {
		doc.Categories[category] = summaryCategory{
			Category:        catReport.Category,
			Themes:          catReport.Themes,
			CategorySummary: catReport.CategorySummary,
			TopItems:        catReport.TopItems,
			ItemCountTotal:  catReport.ItemCountTotal,
			Status:          catReport.Status,
			Notice:          catReport.Notice,
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("render: marshaling summary: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, "summary.json"), data); err != nil {
		return err
	}

	if err := r.updateManifest(report); err != nil {
		return err
	}
	log.Info("artifacts written", "dir", dir, "categories", len(report.Categories))
	return nil
}

// ManifestEntry is one day in the index.
type ManifestEntry struct {
	Date         string      `json:"date"`
	Status       core.Status `json:"status"`
	GeneratedAt  time.Time   `json:"generated_at"`
	ItemCount    int         `json:"item_count"`
	EstimatedUSD float64     `json:"estimated_usd"`
	HasHeroImage bool        `json:"has_hero_image"`
}

type manifest struct {
	Days []ManifestEntry `json:"days"`
}

// updateManifest upserts the day into index.json, newest first. A
// corrupt existing manifest is rebuilt rather than failing the run.
func (r *Renderer) updateManifest(report *core.DayReport) error {
	path := filepath.Join(r.root, "index.json")

	var m manifest
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &m); err != nil {
			logger.Get().Warn("render: manifest corrupt, rebuilding", "path", path, "error", err)
			m = manifest{}
		}
	}

	itemCount := 0
	for _, catReport := range report.Categories {
		itemCount += catReport.ItemCountTotal
	}
	entry := ManifestEntry{
		Date:         report.ReportDate,
		Status:       report.CollectionStatus.Overall,
		GeneratedAt:  time.Now().UTC(),
		ItemCount:    itemCount,
		EstimatedUSD: report.CostSummary.EstimatedUSD,
		HasHeroImage: report.HeroImageURL != "",
	}

	replaced := false
	for i := range m.Days {
		if m.Days[i].Date == entry.Date {
			m.Days[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		m.Days = append(m.Days, entry)
	}
	sort.Slice(m.Days, func(i, j int) bool { return m.Days[i].Date > m.Days[j].Date })

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("render: marshaling manifest: %w", err)
	}
	return atomicWrite(path, data)
}

// atomicWrite lands data at path via a same-directory temp file, fsync,
// and rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("render: temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("render: writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("render: syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("render: closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("render: replacing %s: %w", path, err)
	}
	return nil
}
