// Package source fetches the upstream video feed and resolves per-item
// detail into record skeletons.
//
// The feed is paged; items carry only ids, and the stream URL comes
// from a per-id detail call. Items are always id-keyed here; derived
// title_date keys are reserved for files discovered on disk.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/vodarchiver/vod-archiver/internal/httpclient"
	"github.com/vodarchiver/vod-archiver/internal/record"
)

// Retry tunes the bounded fetch retry loop.
type Retry struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     float64
}

// DefaultRetry mirrors the usual personal-scale tuning.
var DefaultRetry = Retry{MaxRetries: 3, BaseDelay: time.Second, Factor: 2.0}

// delayFor returns the sleep before retry n (1-based):
// base * factor^(n-1).
func (r Retry) delayFor(n int) time.Duration {
	return time.Duration(float64(r.BaseDelay) * math.Pow(r.Factor, float64(n-1)))
}

// Client talks to the feed API.
type Client struct {
	baseURL  string
	authorID string
	token    string
	retry    Retry
	http     *http.Client
	limiter  *rate.Limiter
	log      *log.Logger
}

// Options configures a Client. Zero-valued fields take defaults.
type Options struct {
	BaseURL  string  // e.g. https://api.example.com/v2
	AuthorID string  // keep only this author's items; empty keeps all
	Token    string  // bearer token, optional
	Retry    Retry   // fetch retry tuning
	RPS      float64 // request pacing; <= 0 means 1 req/s
	Client   *http.Client
}

func New(opts Options, logger *log.Logger) *Client {
	if opts.Retry == (Retry{}) {
		opts.Retry = DefaultRetry
	}
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	if opts.Client == nil {
		opts.Client = httpclient.Default()
	}
	return &Client{
		baseURL:  opts.BaseURL,
		authorID: opts.AuthorID,
		token:    opts.Token,
		retry:    opts.Retry,
		http:     opts.Client,
		limiter:  rate.NewLimiter(rate.Limit(opts.RPS), 1),
		log:      logger,
	}
}

// FeedPage is one page of the upstream feed.
type FeedPage struct {
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
	Items []FeedItem `json:"items"`
}

// FeedItem is a single feed entry; detail resolution fills in the rest.
type FeedItem struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
}

type detail struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Cover       string `json:"cover"`
	Description string `json:"description"`
}

// FetchVideos fetches one feed page, resolves details and extracts
// record skeletons. Exhausted retries surface as an empty slice, not
// an error; individual detail failures skip that item and keep going.
func (c *Client) FetchVideos(ctx context.Context, page, size int) []record.Video {
	feed, ok := c.fetchFeed(ctx, page, size)
	if !ok {
		return nil
	}
	c.log.Printf("source: feed page=%d size=%d total=%d items=%d", feed.Page, feed.Size, feed.Total, len(feed.Items))

	var out []record.Video
	for _, item := range feed.Items {
		if item.ID == "" {
			continue
		}
		if c.authorID != "" && item.AuthorID != c.authorID {
			continue
		}
		d, ok := c.fetchDetail(ctx, item.ID)
		if !ok {
			c.log.Printf("source: detail unavailable id=%s", item.ID)
			continue
		}
		out = append(out, record.Extract(record.RawItem{
			ID:        d.ID,
			Caption:   d.Description,
			SourceURL: d.URL,
			CoverURL:  d.Cover,
		}))
	}
	return out
}

func (c *Client) fetchFeed(ctx context.Context, page, size int) (FeedPage, bool) {
	u := fmt.Sprintf("%s/feed?%s", c.baseURL, url.Values{
		"page": {fmt.Sprint(page)},
		"size": {fmt.Sprint(size)},
	}.Encode())
	var feed FeedPage
	if !c.getJSON(ctx, u, &feed) {
		return FeedPage{}, false
	}
	return feed, true
}

func (c *Client) fetchDetail(ctx context.Context, id string) (detail, bool) {
	u := fmt.Sprintf("%s/posts/videos/%s", c.baseURL, url.PathEscape(id))
	var d detail
	if !c.getJSON(ctx, u, &d) {
		return detail{}, false
	}
	if d.ID == "" {
		d.ID = id
	}
	return d, true
}

// getJSON fetches u into target with the bounded retry loop. Network
// failures, non-200s and malformed JSON all count as a failed attempt;
// after the last retry the call reports false and the caller treats
// it as "no data".
func (c *Client) getJSON(ctx context.Context, u string, target any) bool {
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.delayFor(attempt)
			c.log.Printf("source: retry %d/%d in %s url=%s", attempt, c.retry.MaxRetries, delay, u)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return false
		}
		if c.tryGetJSON(ctx, u, target) {
			return true
		}
	}
	c.log.Printf("source: giving up after %d retries url=%s", c.retry.MaxRetries, u)
	return false
}

func (c *Client) tryGetJSON(ctx context.Context, u string, target any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.log.Printf("source: bad request url=%s err=%v", u, err)
		return false
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", httpclient.AcceptEncoding)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := httpclient.DoWithRetry(ctx, c.http, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		c.log.Printf("source: request failed url=%s err=%v", u, err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Printf("source: status=%d url=%s", resp.StatusCode, u)
		return false
	}
	body, err := httpclient.BodyReader(resp)
	if err != nil {
		c.log.Printf("source: decode body url=%s err=%v", u, err)
		return false
	}
	if err := json.NewDecoder(body).Decode(target); err != nil {
		c.log.Printf("source: bad json url=%s err=%v", u, err)
		return false
	}
	return true
}
