package sources

import (
	"os"
	"path/filepath"
	"testing"

	"dailybrief/internal/core"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(FileRSSFeeds, "# comment line\nhttps://example.com/feed.xml\n\nhttps://other.example.com/rss # inline note\n")
	write(FilePreprintCategories, "cs.AI\ncs.LG\n")
	write(FileMicroblog, "someone\n")
	write(FileForums, "MachineLearning\n")

	lists, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(lists.News) != 2 {
		t.Errorf("news sources = %d, want 2", len(lists.News))
	}
	if lists.News[1].Identifier != "https://other.example.com/rss" {
		t.Errorf("inline comment not stripped: %q", lists.News[1].Identifier)
	}
	if len(lists.Research) != 2 || lists.Research[0].Kind != core.SourceKindPreprint {
		t.Errorf("research sources = %+v", lists.Research)
	}
	if len(lists.Social) != 1 || lists.Social[0].Params["platform"] != "microblog" {
		t.Errorf("social sources = %+v", lists.Social)
	}
	if len(lists.Community) != 1 || lists.Community[0].Kind != core.SourceKindForum {
		t.Errorf("community sources = %+v", lists.Community)
	}
}

func TestLoadMissingFilesYieldEmptyLists(t *testing.T) {
	lists, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(lists.News)+len(lists.Research)+len(lists.Social)+len(lists.Community) != 0 {
		t.Errorf("lists should all be empty: %+v", lists)
	}
}

func TestForCategory(t *testing.T) {
	lists := Lists{News: []core.Source{{Identifier: "feed"}}}
	if got := lists.ForCategory(core.CategoryNews); len(got) != 1 {
		t.Errorf("news = %v", got)
	}
	if got := lists.ForCategory(core.Category("bogus")); got != nil {
		t.Errorf("unknown category = %v", got)
	}
}
