// Package feed fetches and parses podcast RSS feeds and folds new items
// into the store.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"stride/internal/logging"
	"stride/internal/services"
)

// Metadata describes the podcast-level fields extracted from a feed.
type Metadata struct {
	Title       string
	Description string
	ImageURL    string
}

// Item describes one downloadable episode extracted from a feed.
type Item struct {
	GUID            string
	Title           string
	Description     string
	AudioURL        string
	PubDate         *time.Time
	DurationSeconds int64
	FileSize        int64
}

// Result is a parsed feed.
type Result struct {
	Metadata Metadata
	Items    []Item
}

// Client fetches and parses RSS feeds with a bounded timeout.
type Client struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	logger     *slog.Logger
}

// NewClient constructs a feed client. Timeout bounds the whole fetch.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		parser:     gofeed.NewParser(),
		logger:     logging.NewComponentLogger(logger, "feed"),
	}
}

// Fetch retrieves and parses the feed at url. Transport failures and non-2xx
// responses are tagged ErrFeedUnreachable; parse failures ErrFeedUnparsable.
func (c *Client) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrFeedUnreachable, "feed", "fetch", "build request", err)
	}
	req.Header.Set("User-Agent", "stride/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrFeedUnreachable, "feed", "fetch", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrFeedUnreachable, "feed", "fetch",
			fmt.Sprintf("%s returned status %d", url, resp.StatusCode), nil)
	}

	parsed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrFeedUnparsable, "feed", "parse", url, err)
	}

	return c.extract(parsed), nil
}

func (c *Client) extract(parsed *gofeed.Feed) *Result {
	result := &Result{
		Metadata: Metadata{
			Title:       strings.TrimSpace(parsed.Title),
			Description: strings.TrimSpace(parsed.Description),
		},
	}
	if parsed.Image != nil {
		result.Metadata.ImageURL = parsed.Image.URL
	}
	if result.Metadata.ImageURL == "" && parsed.ITunesExt != nil {
		result.Metadata.ImageURL = parsed.ITunesExt.Image
	}

	for _, feedItem := range parsed.Items {
		item, ok := c.extractItem(feedItem)
		if !ok {
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result
}

func (c *Client) extractItem(feedItem *gofeed.Item) (Item, bool) {
	if feedItem == nil {
		return Item{}, false
	}

	item := Item{
		Title:       strings.TrimSpace(feedItem.Title),
		Description: strings.TrimSpace(feedItem.Description),
		PubDate:     feedItem.PublishedParsed,
	}

	for _, enclosure := range feedItem.Enclosures {
		if enclosure == nil {
			continue
		}
		if strings.HasPrefix(enclosure.Type, "audio/") || enclosure.Type == "" {
			item.AudioURL = strings.TrimSpace(enclosure.URL)
			if length, err := strconv.ParseInt(strings.TrimSpace(enclosure.Length), 10, 64); err == nil && length > 0 {
				item.FileSize = length
			}
			break
		}
	}
	if item.AudioURL == "" {
		c.logger.Warn("skipping item without audio enclosure",
			logging.String("title", item.Title),
			logging.String(logging.FieldEventType, "feed_item_skipped"),
		)
		return Item{}, false
	}

	item.GUID = strings.TrimSpace(feedItem.GUID)
	if item.GUID == "" {
		// Some feeds omit guid; the link is the next-most-stable identifier.
		item.GUID = strings.TrimSpace(feedItem.Link)
	}
	if item.GUID == "" {
		item.GUID = item.AudioURL
	}
	if item.GUID == "" {
		c.logger.Warn("skipping item without usable identifier",
			logging.String("title", item.Title),
			logging.String(logging.FieldEventType, "feed_item_skipped"),
		)
		return Item{}, false
	}

	if item.Title == "" {
		item.Title = "Untitled Episode"
	}

	if feedItem.ITunesExt != nil {
		item.DurationSeconds = parseDuration(feedItem.ITunesExt.Duration)
	}

	return item, true
}

// parseDuration accepts HH:MM:SS, MM:SS, or plain seconds.
func parseDuration(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	parts := strings.Split(value, ":")
	if len(parts) == 1 {
		if secs, err := strconv.ParseInt(parts[0], 10, 64); err == nil && secs >= 0 {
			return secs
		}
		return 0
	}
	if len(parts) > 3 {
		return 0
	}
	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
