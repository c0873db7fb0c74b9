package gather

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// RSS and Atom wire structures. Both shapes are tried against a fetched
// document; whichever decodes with a title wins.

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Creator     string `xml:"creator"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
	// Preprint feeds mark entries as new, cross, or replace.
	AnnounceType string `xml:"announce_type"`
}

type atomDoc struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Author    struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// feedEntry is one normalized feed item regardless of dialect.
type feedEntry struct {
	Title     string
	Link      string
	Body      string
	Author    string
	Published time.Time
	Announce  string // Preprint announce type, empty elsewhere
}

// parseFeed decodes an RSS or Atom document into normalized entries.
func parseFeed(data []byte) ([]feedEntry, error) {
	var rss rssDoc
	if err := xml.Unmarshal(data, &rss); err == nil && rss.Channel.Title != "" {
		entries := make([]feedEntry, 0, len(rss.Channel.Items))
		for _, item := range rss.Channel.Items {
			entries = append(entries, feedEntry{
				Title:     strings.TrimSpace(item.Title),
				Link:      strings.TrimSpace(item.Link),
				Body:      item.Description,
				Author:    strings.TrimSpace(item.Creator),
				Published: parseFeedDate(item.PubDate),
				Announce:  strings.TrimSpace(item.AnnounceType),
			})
		}
		return entries, nil
	}

	var atom atomDoc
	if err := xml.Unmarshal(data, &atom); err == nil && atom.Title != "" {
		entries := make([]feedEntry, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			link := ""
			for _, l := range entry.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			body := entry.Content
			if body == "" {
				body = entry.Summary
			}
			published := entry.Published
			if published == "" {
				published = entry.Updated
			}
			entries = append(entries, feedEntry{
				Title:     strings.TrimSpace(entry.Title),
				Link:      strings.TrimSpace(link),
				Body:      body,
				Author:    strings.TrimSpace(entry.Author.Name),
				Published: parseFeedDate(published),
			})
		}
		return entries, nil
	}

	return nil, fmt.Errorf("document is neither RSS nor Atom")
}

// feedDateFormats covers the date shapes seen in the wild across feeds.
var feedDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

func parseFeedDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, format := range feedDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
