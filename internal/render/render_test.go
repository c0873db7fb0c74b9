package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dailybrief/internal/core"
)

func sampleReport(date string) *core.DayReport {
	return &core.DayReport{
		ReportDate:       date,
		CoverageStart:    time.Date(2025, 6, 1, 4, 0, 0, 0, time.UTC),
		CoverageEnd:      time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC),
		ExecutiveSummary: []string{"The one thing that mattered."},
		Categories: map[core.Category]core.CategoryReport{
			core.CategoryNews: {
				Category:       core.CategoryNews,
				Items:          []core.Item{{ID: "aaa111bbb222", Title: "Item", URL: "https://example.com/x"}},
				TopItems:       []core.Item{{ID: "aaa111bbb222", Title: "Item"}},
				ItemCountTotal: 1,
				Status:         core.StatusSuccess,
			},
		},
		CollectionStatus: core.CollectionStatus{Overall: core.StatusSuccess},
	}
}

func TestWriteReportLaysOutDayDirectory(t *testing.T) {
	root := t.TempDir()
	r := New(root)
	report := sampleReport("2025-06-02")
	report.HeroImage = []byte("fake-webp")

	if err := r.WriteReport(report); err != nil {
		t.Fatal(err)
	}

	day := filepath.Join(root, "2025-06-02")
	for _, name := range []string{"summary.json", "news.json", "hero.webp"} {
		if _, err := os.Stat(filepath.Join(day, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if report.HeroImageURL != "/data/2025-06-02/hero.webp" {
		t.Errorf("hero url = %q", report.HeroImageURL)
	}

	// No temp files may survive.
	entries, _ := os.ReadDir(day)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestSummaryOmitsFullItemList(t *testing.T) {
	root := t.TempDir()
	if err := New(root).WriteReport(sampleReport("2025-06-02")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, "2025-06-02", "summary.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	categories := doc["categories"].(map[string]any)
	news := categories["news"].(map[string]any)
	if _, ok := news["items"]; ok {
		t.Error("summary.json should not carry the full item list")
	}
	if _, ok := news["top_items"]; !ok {
		t.Error("summary.json should carry top items")
	}
}

func TestManifestUpsert(t *testing.T) {
	root := t.TempDir()
	r := New(root)

	if err := r.WriteReport(sampleReport("2025-06-01")); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteReport(sampleReport("2025-06-02")); err != nil {
		t.Fatal(err)
	}
	// Re-running a day replaces its entry instead of duplicating it.
	if err := r.WriteReport(sampleReport("2025-06-02")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, "index.json"))
	if err != nil {
		t.Fatal(err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if len(m.Days) != 2 {
		t.Fatalf("manifest days = %d, want 2", len(m.Days))
	}
	if m.Days[0].Date != "2025-06-02" || m.Days[1].Date != "2025-06-01" {
		t.Errorf("manifest order = %s, %s (want newest first)", m.Days[0].Date, m.Days[1].Date)
	}
}

func TestManifestSurvivesCorruption(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := New(root).WriteReport(sampleReport("2025-06-02")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "index.json"))
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest not rebuilt: %v", err)
	}
	if len(m.Days) != 1 {
		t.Errorf("days = %d, want 1", len(m.Days))
	}
}

func TestAtomicWriteReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")
	if err := atomicWrite(path, []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := atomicWrite(path, []byte("new")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("content = %q", data)
	}
}
