package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dailybrief/internal/core"
	"dailybrief/internal/limiter"
)

// Social platform tags, also the per-platform status keys.
const (
	PlatformMicroblog          = "microblog"
	PlatformFederatedMicroblog = "federated-microblog"
	PlatformFederatedLongform  = "federated-longform"
)

const microblogSearchURL = "https://api.x.com/2/tweets/search/recent"

// SocialGatherer pulls posts from the microblog API (authenticated) and
// from federated instances (public APIs). A missing microblog credential
// skips that platform; it never counts as a failure.
type SocialGatherer struct {
	sources      []core.Source
	hc           *limiter.Client
	opts         Options
	microblogKey string
}

// NewSocialGatherer builds the social gatherer. microblogKey may be empty.
func NewSocialGatherer(srcs []core.Source, hc *limiter.Client, opts Options, microblogKey string) *SocialGatherer {
	return &SocialGatherer{sources: srcs, hc: hc, opts: opts, microblogKey: microblogKey}
}

// Category implements Gatherer.
func (g *SocialGatherer) Category() core.Category { return core.CategorySocial }

// Gather implements Gatherer.
func (g *SocialGatherer) Gather(ctx context.Context, window core.CoverageWindow) ([]core.Item, core.CategoryStatus) {
	norm := newNormalizer(core.CategorySocial, window)
	var (
		mu       sync.Mutex
		statuses []core.SourceStatus
	)

	eg, fctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxConcurrentSources)
	for _, src := range g.sources {
		src := src
		platform := src.Params["platform"]
		if platform == PlatformMicroblog && g.microblogKey == "" {
			mu.Lock()
			statuses = append(statuses, core.SourceStatus{
				Source: src.Identifier, Status: core.StatusSkipped,
				Notice: "microblog credential absent",
			})
			mu.Unlock()
			continue
		}
		eg.Go(func() error {
			var (
				posts []socialPost
				err   error
			)
			switch platform {
			case PlatformMicroblog:
				posts, err = g.fetchMicroblog(fctx, src.Identifier)
			default:
				posts, err = g.fetchFederated(fctx, src.Identifier)
			}

			mu.Lock()
			defer mu.Unlock()
			count := 0
			for _, post := range posts {
				meta := map[string]string{"platform": platform}
				if post.Likes > 0 {
					meta["likes"] = strconv.Itoa(post.Likes)
				}
				if post.Reposts > 0 {
					meta["reposts"] = strconv.Itoa(post.Reposts)
				}
				if len(post.Links) > 0 {
					meta["referenced_urls"] = strings.Join(post.Links, " ")
				}
				if norm.add(core.Item{
					SourceName:  src.Identifier,
					SourceKind:  core.SourceKindAPI,
					URL:         post.URL,
					Title:       post.Title,
					Content:     post.Body,
					Author:      post.Author,
					PublishedAt: post.Published,
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

	status := rollup(core.CategorySocial, statuses, ctx.Err() != nil)
	status.Dropped = norm.dropped
	status.Platforms = platformRollup(g.sources, statuses)
	return norm.items, status
}

// platformRollup folds per-account statuses into per-platform ones.
func platformRollup(srcs []core.Source, statuses []core.SourceStatus) []core.SourceStatus {
	byAccount := make(map[string]core.SourceStatus, len(statuses))
	for _, s := range statuses {
		byAccount[s.Source] = s
	}

	agg := map[string]*core.SourceStatus{}
	order := []string{}
	for _, src := range srcs {
		platform := src.Params["platform"]
		p, ok := agg[platform]
		if !ok {
			p = &core.SourceStatus{Source: platform, Status: core.StatusSkipped}
			agg[platform] = p
			order = append(order, platform)
		}
		s, ok := byAccount[src.Identifier]
		if !ok {
			continue
		}
		p.ItemCount += s.ItemCount
		if s.Status == core.StatusSkipped {
			if p.Notice == "" {
				p.Notice = s.Notice
			}
			continue
		}
		if p.Status == core.StatusSkipped {
			p.Status = s.Status
		} else {
			p.Status = core.Worse(p.Status, s.Status)
		}
	}

	out := make([]core.SourceStatus, 0, len(order))
	for _, platform := range order {
		out = append(out, *agg[platform])
	}
	return out
}

// socialPost is one normalized post regardless of platform.
type socialPost struct {
	URL       string
	Title     string
	Body      string
	Author    string
	Published time.Time
	Likes     int
	Reposts   int
	Links     []string
}

// microblogResponse is the recent-search API shape.
type microblogResponse struct {
	Data []struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
		} `json:"public_metrics"`
		Entities struct {
			URLs []struct {
				ExpandedURL string `json:"expanded_url"`
			} `json:"urls"`
		} `json:"entities"`
	} `json:"data"`
}

// fetchMicroblog pulls a handle's recent posts through the authenticated
// search API.
func (g *SocialGatherer) fetchMicroblog(ctx context.Context, handle string) ([]socialPost, error) {
	query := url.Values{}
	query.Set("query", "from:"+handle+" -is:retweet")
	query.Set("max_results", "50")
	query.Set("tweet.fields", "created_at,public_metrics,entities")

	headers := map[string]string{"Authorization": "Bearer " + g.microblogKey}
	body, err := fetchBody(ctx, g.hc, microblogSearchURL+"?"+query.Encode(), headers, maxFeedBytes)
	if err != nil {
		return nil, err
	}

	var resp microblogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("microblog response: %w", err)
	}

	posts := make([]socialPost, 0, len(resp.Data))
	for _, post := range resp.Data {
		var links []string
		for _, u := range post.Entities.URLs {
			if u.ExpandedURL != "" {
				links = append(links, u.ExpandedURL)
			}
		}
		posts = append(posts, socialPost{
			URL:       fmt.Sprintf("https://x.com/%s/status/%s", handle, post.ID),
			Title:     postTitle(post.Text),
			Body:      post.Text,
			Author:    handle,
			Published: post.CreatedAt,
			Likes:     post.PublicMetrics.LikeCount,
			Reposts:   post.PublicMetrics.RetweetCount,
			Links:     links,
		})
	}
	return posts, nil
}

// federatedStatus is the mastodon-compatible status shape shared by the
// federated microblog and longform platforms.
type federatedStatus struct {
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Favorites int       `json:"favourites_count"`
	Reblogs   int       `json:"reblogs_count"`
	Account   struct {
		DisplayName string `json:"display_name"`
		Acct        string `json:"acct"`
	} `json:"account"`
	Card struct {
		URL string `json:"url"`
	} `json:"card"`
}

// fetchFederated pulls an account's recent statuses from its home
// instance's public API. Accounts are configured as user@instance.
func (g *SocialGatherer) fetchFederated(ctx context.Context, account string) ([]socialPost, error) {
	user, instance, ok := strings.Cut(strings.TrimPrefix(account, "@"), "@")
	if !ok {
		return nil, fmt.Errorf("account %q is not user@instance", account)
	}

	lookup := fmt.Sprintf("https://%s/api/v1/accounts/lookup?acct=%s", instance, url.QueryEscape(user))
	body, err := fetchBody(ctx, g.hc, lookup, nil, maxFeedBytes)
	if err != nil {
		return nil, err
	}
	var acct struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &acct); err != nil || acct.ID == "" {
		return nil, fmt.Errorf("account lookup for %q failed", account)
	}

	statusesURL := fmt.Sprintf("https://%s/api/v1/accounts/%s/statuses?limit=40&exclude_reblogs=true", instance, acct.ID)
	body, err = fetchBody(ctx, g.hc, statusesURL, nil, maxFeedBytes)
	if err != nil {
		return nil, err
	}
	var raw []federatedStatus
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("statuses for %q: %w", account, err)
	}

	posts := make([]socialPost, 0, len(raw))
	for _, status := range raw {
		text := SanitizeText(status.Content)
		author := status.Account.DisplayName
		if author == "" {
			author = status.Account.Acct
		}
		var links []string
		if status.Card.URL != "" {
			links = append(links, status.Card.URL)
		}
		posts = append(posts, socialPost{
			URL:       status.URL,
			Title:     postTitle(text),
			Body:      text,
			Author:    author,
			Published: status.CreatedAt,
			Likes:     status.Favorites,
			Reposts:   status.Reblogs,
			Links:     links,
		})
	}
	return posts, nil
}

// postTitle derives a short title from the opening of a post.
func postTitle(text string) string {
	text = strings.TrimSpace(text)
	if line, _, ok := strings.Cut(text, "\n"); ok {
		text = line
	}
	const maxTitle = 120
	if len(text) > maxTitle {
		cut := maxTitle
		for cut > 0 && !isRuneStart(text[cut]) {
			cut--
		}
		text = strings.TrimSpace(text[:cut]) + "…"
	}
	return text
}
