// Package sources loads the configured content sources from line-delimited
// list files. Lists are read once at startup and immutable for the run.
package sources

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dailybrief/internal/core"
)

// List file names under the sources directory.
const (
	FileRSSFeeds           = "rss_feeds.txt"
	FilePreprintCategories = "preprint_categories.txt"
	FileResearchFeeds      = "research_feeds.txt"
	FileMicroblog          = "microblog_accounts.txt"
	FileFederatedMicroblog = "federated_microblog_accounts.txt"
	FileFederatedLongform  = "federated_longform_accounts.txt"
	FileForums             = "forum_names.txt"
)

// Lists is every source list for a run, grouped by category.
type Lists struct {
	News      []core.Source // RSS feeds
	Research  []core.Source // Preprint categories + research feeds
	Social    []core.Source // Microblog + federated accounts
	Community []core.Source // Forum names
}

// ForCategory returns the sources belonging to one category.
func (l Lists) ForCategory(c core.Category) []core.Source {
	switch c {
	case core.CategoryNews:
		return l.News
	case core.CategoryResearch:
		return l.Research
	case core.CategorySocial:
		return l.Social
	case core.CategoryCommunity:
		return l.Community
	}
	return nil
}

// Load reads every list file under dir. Missing files yield empty lists
// rather than errors; a category without sources is simply idle.
func Load(dir string) (Lists, error) {
	var lists Lists

	read := func(name string) ([]string, error) {
		return readLines(filepath.Join(dir, name))
	}

	rss, err := read(FileRSSFeeds)
	if err != nil {
		return lists, err
	}
	for _, feed := range rss {
		lists.News = append(lists.News, core.Source{
			Identifier: feed, Category: core.CategoryNews, Kind: core.SourceKindRSS,
		})
	}

	preprints, err := read(FilePreprintCategories)
	if err != nil {
		return lists, err
	}
	for _, cat := range preprints {
		lists.Research = append(lists.Research, core.Source{
			Identifier: cat, Category: core.CategoryResearch, Kind: core.SourceKindPreprint,
		})
	}
	research, err := read(FileResearchFeeds)
	if err != nil {
		return lists, err
	}
	for _, feed := range research {
		lists.Research = append(lists.Research, core.Source{
			Identifier: feed, Category: core.CategoryResearch, Kind: core.SourceKindRSS,
		})
	}

	for name, platform := range map[string]string{
		FileMicroblog:          "microblog",
		FileFederatedMicroblog: "federated-microblog",
		FileFederatedLongform:  "federated-longform",
	} {
		accounts, err := read(name)
		if err != nil {
			return lists, err
		}
		for _, account := range accounts {
			lists.Social = append(lists.Social, core.Source{
				Identifier: account, Category: core.CategorySocial, Kind: core.SourceKindAPI,
				Params: map[string]string{"platform": platform},
			})
		}
	}

	forums, err := read(FileForums)
	if err != nil {
		return lists, err
	}
	for _, forum := range forums {
		lists.Community = append(lists.Community, core.Source{
			Identifier: forum, Category: core.CategoryCommunity, Kind: core.SourceKindForum,
		})
	}

	return lists, nil
}

// readLines reads one list file: one entry per line, # comments and blank
// lines ignored, inline comments stripped.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening source list %s: %w", path, err)
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading source list %s: %w", path, err)
	}
	return entries, nil
}
