package ecosystem

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"dailybrief/internal/analyze"
	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
	"dailybrief/internal/llm"
	"dailybrief/internal/logger"
)

// minDetectionConfidence gates which detected releases enter the timeline.
const minDetectionConfidence = 0.8

// detection is one release the model spotted in the day's items.
type detection struct {
	Vendor     string  `json:"vendor"`
	Model      string  `json:"model"`
	GADate     string  `json:"ga_date"`
	APIDate    string  `json:"api_date"`
	Confidence float64 `json:"confidence"`
}

const enrichSystem = "You watch a day's AI/ML items for announcements of newly released " +
	"models. List only releases explicitly announced as available, with the vendor, model " +
	"name, dates if stated, and your confidence from 0 to 1. Do not list rumored or " +
	"previewed models. Respond with a JSON array of objects {vendor, model, ga_date, " +
	"api_date, confidence}, possibly empty, nothing else."

// Enrich scans the day's top items for release announcements and appends
// confident, previously unknown releases to the timeline. The pass is
// append-only: nothing curated is altered, and any failure leaves the
// timeline as it was. It returns the releases it added so the caller can
// persist them; the only error is reasoning loss.
func Enrich(ctx context.Context, lc *llm.Client, t *Timeline, reports map[core.Category]core.CategoryReport) ([]core.EcosystemRelease, error) {
	log := logger.Get()

	type candidate struct {
		Title   string `json:"title"`
		Summary string `json:"summary,omitempty"`
	}
	var candidates []candidate
	for _, report := range reports {
		for _, item := range report.TopItems {
			candidates = append(candidates, candidate{Title: item.Title, Summary: item.Summary})
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(candidates)
	if err != nil {
		return nil, nil
	}

	resp, err := lc.Generate(ctx, "ecosystem_enrich", enrichSystem, string(payload), llm.BudgetStandard)
	if err != nil {
		if llm.IsReasoningUnavailable(err) {
			return nil, err
		}
		log.Warn("ecosystem: enrichment call failed", "error", err)
		return nil, nil
	}
	doc, err := analyze.ExtractJSON(resp.Text)
	if err != nil {
		log.Warn("ecosystem: enrichment response unparseable", "error", err)
		return nil, nil
	}
	var detections []detection
	if err := json.Unmarshal(doc, &detections); err != nil {
		log.Warn("ecosystem: enrichment response unparseable", "error", err)
		return nil, nil
	}

	var added []core.EcosystemRelease
	for _, d := range detections {
		if d.Confidence < minDetectionConfidence {
			continue
		}
		if strings.TrimSpace(d.Vendor) == "" || strings.TrimSpace(d.Model) == "" {
			continue
		}
		if t.Has(d.Vendor, d.Model) {
			continue
		}
		release := core.EcosystemRelease{
			Vendor:     strings.TrimSpace(d.Vendor),
			ModelName:  strings.TrimSpace(d.Model),
			GADate:     d.GADate,
			APIDate:    d.APIDate,
			Confidence: d.Confidence,
			Source:     core.ReleaseSourceAutoDetected,
		}
		t.Add(release)
		added = append(added, release)
	}
	if len(added) > 0 {
		log.Info("ecosystem: timeline enriched", "detected", len(detections), "added", len(added))
	}
	return added, nil
}

// fetchJSON issues one GET through the shared limiter and returns the
// capped body.
func fetchJSON(ctx context.Context, hc *limiter.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxRegistryBytes))
}
