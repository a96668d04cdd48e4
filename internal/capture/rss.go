package capture

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"engagepilot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RSSSource captures candidates from Nitter-style post feeds. Each
// configured feed URL is one timeline; mention feeds are listed
// separately. Pagination state advances on Scroll.
type RSSSource struct {
	client      HTTPClient
	timeout     time.Duration
	feedURLs    []string
	mentionURLs []string

	mu   sync.Mutex
	page int
}

// NewRSSSource creates a source reading the given timeline and mention
// feed URLs with the provided HTTP client.
func NewRSSSource(client HTTPClient, feedURLs, mentionURLs []string) *RSSSource {
	return &RSSSource{
		client:      client,
		timeout:     30 * time.Second,
		feedURLs:    feedURLs,
		mentionURLs: mentionURLs,
	}
}

// FetchCandidates downloads and parses every configured timeline feed.
// A single failing feed aborts the fetch so the engine retries next cycle.
func (s *RSSSource) FetchCandidates(ctx context.Context) ([]model.Candidate, error) {
	return s.fetchAll(ctx, s.feedURLs)
}

// FetchMentions downloads and parses the configured mention feeds.
func (s *RSSSource) FetchMentions(ctx context.Context) ([]model.Candidate, error) {
	return s.fetchAll(ctx, s.mentionURLs)
}

// Scroll advances pagination for the next fetch.
func (s *RSSSource) Scroll(_ context.Context) error {
	s.mu.Lock()
	s.page++
	s.mu.Unlock()
	return nil
}

func (s *RSSSource) fetchAll(ctx context.Context, urls []string) ([]model.Candidate, error) {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()

	var candidates []model.Candidate
	for _, url := range urls {
		feed, err := s.fetch(ctx, pagedURL(url, page))
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		for _, item := range feed.Items {
			candidates = append(candidates, itemToCandidate(feed, item))
		}
	}
	return candidates, nil
}

func (s *RSSSource) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "EngagePilot/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

var (
	statusIDRe   = regexp.MustCompile(`/status(?:es)?/(\d+)`)
	replyTitleRe = regexp.MustCompile(`^R to @(\w+):\s*`)
)

func itemToCandidate(feed *gofeed.Feed, item *gofeed.Item) model.Candidate {
	text := item.Title
	if text == "" {
		text = item.Description
	}

	author := itemAuthor(feed, item)

	isReply := false
	replyTo := ""
	if m := replyTitleRe.FindStringSubmatch(text); m != nil {
		isReply = true
		replyTo = m[1]
		text = replyTitleRe.ReplaceAllString(text, "")
	}

	captured := time.Now().UTC()
	if item.PublishedParsed != nil {
		captured = item.PublishedParsed.UTC()
	}

	return model.Candidate{
		ID:            itemID(item),
		Author:        author,
		Text:          strings.TrimSpace(text),
		CapturedAt:    captured,
		HasMedia:      len(item.Enclosures) > 0,
		IsReply:       isReply,
		ReplyToAuthor: replyTo,
	}
}

func itemAuthor(feed *gofeed.Feed, item *gofeed.Item) string {
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return model.NormalizeHandle(item.DublinCoreExt.Creator[0])
	}
	if item.Author != nil && item.Author.Name != "" {
		return model.NormalizeHandle(item.Author.Name)
	}
	// Nitter user feeds title themselves "name / @handle".
	if i := strings.LastIndex(feed.Title, "@"); i >= 0 {
		return model.NormalizeHandle(feed.Title[i:])
	}
	return ""
}

// itemID extracts the post id from the item link, falling back to the
// GUID or a hash of title+link.
func itemID(item *gofeed.Item) string {
	if m := statusIDRe.FindStringSubmatch(item.Link); m != nil {
		return m[1]
	}
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func pagedURL(url string, page int) string {
	if page == 0 {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", url, sep, page)
}
