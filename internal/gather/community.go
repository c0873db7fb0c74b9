package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
)

const forumListingBase = "https://www.reddit.com/r/"

// CommunityGatherer pulls recent discussions from the configured forums
// through their anonymous JSON listings.
type CommunityGatherer struct {
	sources []core.Source
	hc      *limiter.Client
	opts    Options
}

// NewCommunityGatherer builds the community gatherer.
func NewCommunityGatherer(srcs []core.Source, hc *limiter.Client, opts Options) *CommunityGatherer {
	return &CommunityGatherer{sources: srcs, hc: hc, opts: opts}
}

// Category implements Gatherer.
func (g *CommunityGatherer) Category() core.Category { return core.CategoryCommunity }

// Gather implements Gatherer.
func (g *CommunityGatherer) Gather(ctx context.Context, window core.CoverageWindow) ([]core.Item, core.CategoryStatus) {
	norm := newNormalizer(core.CategoryCommunity, window)
	var (
		mu       sync.Mutex
		statuses []core.SourceStatus
	)

	eg, fctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxConcurrentSources)
	for _, src := range g.sources {
		src := src
		eg.Go(func() error {
			threads, err := g.fetchForum(fctx, src.Identifier)

			mu.Lock()
			defer mu.Unlock()
			count := 0
			for _, thread := range threads {
				meta := map[string]string{
					"upvotes":  strconv.Itoa(thread.Upvotes),
					"comments": strconv.Itoa(thread.Comments),
				}
				if thread.External != "" {
					meta["referenced_urls"] = thread.External
				}
				if norm.add(core.Item{
					SourceName:  src.Identifier,
					SourceKind:  core.SourceKindForum,
					URL:         thread.URL,
					Title:       thread.Title,
					Content:     thread.Body,
					Author:      thread.Author,
					PublishedAt: thread.Published,
					Metadata:    meta,
				}) {
					count++
				}
			}
			statuses = append(statuses, sourceOutcome(src.Identifier, count, err, ""))
			return nil
		})
	}
	_ = eg.Wait()

	status := rollup(core.CategoryCommunity, statuses, ctx.Err() != nil)
	status.Dropped = norm.dropped
	return norm.items, status
}

// forumThread is one normalized forum discussion.
type forumThread struct {
	URL       string
	Title     string
	Body      string
	Author    string
	Published time.Time
	Upvotes   int
	Comments  int
	External  string
}

// forumListing is the anonymous listing shape.
type forumListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string  `json:"title"`
				SelfText    string  `json:"selftext"`
				Permalink   string  `json:"permalink"`
				URL         string  `json:"url"`
				Author      string  `json:"author"`
				CreatedUTC  float64 `json:"created_utc"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				IsSelf      bool    `json:"is_self"`
				Stickied    bool    `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (g *CommunityGatherer) fetchForum(ctx context.Context, forum string) ([]forumThread, error) {
	listingURL := forumListingBase + forum + "/new.json?limit=100"
	body, err := fetchBody(ctx, g.hc, listingURL, nil, maxFeedBytes)
	if err != nil {
		return nil, err
	}

	var listing forumListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("forum %s listing: %w", forum, err)
	}

	threads := make([]forumThread, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied {
			continue
		}
		thread := forumThread{
			URL:       "https://www.reddit.com" + post.Permalink,
			Title:     post.Title,
			Body:      post.SelfText,
			Author:    post.Author,
			Published: time.Unix(int64(post.CreatedUTC), 0).UTC(),
			Upvotes:   post.Score,
			Comments:  post.NumComments,
		}
		// Link posts carry the discussed page alongside the thread.
		if !post.IsSelf && post.URL != "" {
			thread.External = post.URL
		}
		threads = append(threads, thread)
	}
	return threads, nil
}
