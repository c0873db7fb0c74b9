// Package ecosystem maintains the model-release timeline that grounds the
// synthesis prompts: a curated YAML file, optionally merged with an
// external registry and enriched from the day's own items.
package ecosystem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
	"dailybrief/internal/logger"
)

// DefaultCuratedPath is where the curated timeline lives.
const DefaultCuratedPath = "config/ecosystem_releases.yaml"

// Timeline is the merged set of known model releases, keyed by vendor and
// model name.
type Timeline struct {
	releases []core.EcosystemRelease
	index    map[string]int
}

func key(vendor, model string) string {
	return strings.ToLower(strings.TrimSpace(vendor)) + "\x00" + strings.ToLower(strings.TrimSpace(model))
}

// NewTimeline builds an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{index: make(map[string]int)}
}

// Releases returns the timeline ordered by GA date descending, undated
// entries last.
func (t *Timeline) Releases() []core.EcosystemRelease {
	out := make([]core.EcosystemRelease, len(t.releases))
	copy(out, t.releases)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].GADate, out[j].GADate
		if (a == "") != (b == "") {
			return a != ""
		}
		return a > b
	})
	return out
}

// Add inserts a release. Curated entries always win over other sources
// for the same vendor and model; otherwise first entry wins.
func (t *Timeline) Add(r core.EcosystemRelease) {
	if r.Vendor == "" || r.ModelName == "" {
		return
	}
	k := key(r.Vendor, r.ModelName)
	if i, ok := t.index[k]; ok {
		if r.Source == core.ReleaseSourceCurated && t.releases[i].Source != core.ReleaseSourceCurated {
			t.releases[i] = r
		}
		return
	}
	t.index[k] = len(t.releases)
	t.releases = append(t.releases, r)
}

// Has reports whether the vendor and model pair is already known.
func (t *Timeline) Has(vendor, model string) bool {
	_, ok := t.index[key(vendor, model)]
	return ok
}

// curatedFile is the YAML shape of the curated timeline.
type curatedFile struct {
	Releases []core.EcosystemRelease `yaml:"releases"`
}

// LoadCurated reads the curated timeline. A missing file yields an empty
// timeline; the grounding context is an enhancement, not a requirement.
func LoadCurated(path string) (*Timeline, error) {
	t := NewTimeline()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("ecosystem: reading %s: %w", path, err)
	}
	var file curatedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ecosystem: parsing %s: %w", path, err)
	}
	for _, r := range file.Releases {
		if r.Source == "" {
			r.Source = core.ReleaseSourceCurated
		}
		if r.Confidence == 0 {
			r.Confidence = 1.0
		}
		t.Add(r)
	}
	return t, nil
}

// AppendDetected persists newly detected releases onto the curated file
// so they survive the run. The write is strictly additive: existing file
// content, curated entries included, is never rewritten.
func AppendDetected(path string, releases []core.EcosystemRelease) error {
	if len(releases) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(curatedFile{Releases: releases}); err != nil {
		return fmt.Errorf("ecosystem: marshaling detected releases: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("ecosystem: marshaling detected releases: %w", err)
	}
	data := buf.String()

	existing, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.WriteFile(path, []byte(data), 0o644)
		}
		return fmt.Errorf("ecosystem: reading %s: %w", path, err)
	}
	if !strings.Contains(string(existing), "releases:") {
		return fmt.Errorf("ecosystem: %s has no releases list to append to", path)
	}

	// Drop the "releases:" key line; the entries slot under the existing one.
	entries := strings.TrimPrefix(data, "releases:\n")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ecosystem: opening %s: %w", path, err)
	}
	defer f.Close()
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	if _, err := f.WriteString(entries); err != nil {
		return fmt.Errorf("ecosystem: appending to %s: %w", path, err)
	}
	return f.Close()
}

// registryEntry is one release in the external registry's JSON feed.
type registryEntry struct {
	Vendor  string `json:"vendor"`
	Model   string `json:"model"`
	GADate  string `json:"ga_date"`
	APIDate string `json:"api_date"`
}

// MergeRegistry fetches the external registry and folds its entries into
// the timeline. Registry failures only log; the curated entries stand.
func MergeRegistry(ctx context.Context, hc *limiter.Client, registryURL string, t *Timeline) {
	if registryURL == "" {
		return
	}
	log := logger.Get()
	body, err := fetchJSON(ctx, hc, registryURL)
	if err != nil {
		log.Warn("ecosystem: registry fetch failed", "url", registryURL, "error", err)
		return
	}
	var entries []registryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		log.Warn("ecosystem: registry response unparseable", "url", registryURL, "error", err)
		return
	}
	added := 0
	for _, e := range entries {
		if t.Has(e.Vendor, e.Model) {
			continue
		}
		t.Add(core.EcosystemRelease{
			Vendor:     e.Vendor,
			ModelName:  e.Model,
			GADate:     e.GADate,
			APIDate:    e.APIDate,
			Confidence: 0.9,
			Source:     core.ReleaseSourceRegistry,
		})
		added++
	}
	log.Info("ecosystem: registry merged", "entries", len(entries), "added", added)
}

// GroundingText renders the timeline as the plain-text context block
// injected into synthesis prompts. Low-confidence entries are annotated
// so the model treats them as unconfirmed.
func (t *Timeline) GroundingText() string {
	releases := t.Releases()
	if len(releases) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Known model releases (most recent first):\n")
	for _, r := range releases {
		sb.WriteString("- ")
		sb.WriteString(r.Vendor)
		sb.WriteString(" ")
		sb.WriteString(r.ModelName)
		if r.GADate != "" {
			sb.WriteString(", generally available ")
			sb.WriteString(r.GADate)
		}
		if r.APIDate != "" && r.APIDate != r.GADate {
			sb.WriteString(", API since ")
			sb.WriteString(r.APIDate)
		}
		if r.Confidence < 0.8 {
			sb.WriteString(" (unconfirmed)")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

const maxRegistryBytes = 1 << 20
