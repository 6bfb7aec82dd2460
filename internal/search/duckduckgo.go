// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/minigpt/internal/offline"
)

// NoResultsMessage is returned when both providers answered but found nothing.
const NoResultsMessage = "I couldn't find relevant information for that search query."

const (
	defaultAPIURL  = "https://api.duckduckgo.com/"
	defaultHTMLURL = "https://html.duckduckgo.com/html/"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxJSONBytes = 1 << 20
	maxHTMLBytes = 5 << 20
)

// =============================================================================
// PERFORMANCE: Pre-compiled regex (compiled once at startup)
// =============================================================================

var (
	ddgTitleRegex   = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]*>(.+?)</a>`)
	ddgSnippetRegex = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.+?)</a>`)

	tagRegex        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	APIURL     string
	HTMLURL    string
	Timeout    time.Duration
	MaxResults int

	// Interval is the minimum spacing between outbound searches.
	Interval time.Duration

	Policy offline.Policy
	Logger *slog.Logger
}

// Client searches DuckDuckGo. It is safe for concurrent use.
type Client struct {
	apiURL     string
	htmlURL    string
	timeout    time.Duration
	maxResults int
	policy     offline.Policy
	logger     *slog.Logger
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a search client. Zero options take defaults: the public
// DuckDuckGo endpoints, a 10s timeout, 3 results and one search per second.
func NewClient(opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	if opts.HTMLURL == "" {
		opts.HTMLURL = defaultHTMLURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 3
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiURL:     opts.APIURL,
		htmlURL:    opts.HTMLURL,
		timeout:    opts.Timeout,
		maxResults: opts.MaxResults,
		policy:     opts.Policy,
		logger:     opts.Logger,
		limiter:    rate.NewLimiter(rate.Every(opts.Interval), 1),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
	}
}

// Search looks query up and returns a one-line summary.
//
// The Instant Answer API is tried first, then the HTML results page. When
// both answer without anything usable the result is NoResultsMessage. An
// error is returned only when the search could not run at all: offline
// mode, cancellation, or both providers failing.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("empty search query")
	}
	if err := c.policy.CheckWebFetchAllowed(); err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	instant, instantErr := c.searchInstant(ctx, query)
	if instantErr == nil && instant != "" {
		return instant, nil
	}
	if instantErr != nil {
		c.logger.Warn("SEARCH_PROVIDER_FAILED", "provider", "instant", "error", instantErr)
	}

	page, htmlErr := c.searchHTML(ctx, query)
	if htmlErr == nil && page != "" {
		return page, nil
	}
	if htmlErr != nil {
		c.logger.Warn("SEARCH_PROVIDER_FAILED", "provider", "html", "error", htmlErr)
	}

	if instantErr != nil && htmlErr != nil {
		return "", fmt.Errorf("search failed: %w", errors.Join(instantErr, htmlErr))
	}
	return NoResultsMessage, nil
}

// =============================================================================
// INSTANT ANSWER API
// =============================================================================

type instantResponse struct {
	AbstractText  string         `json:"AbstractText"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text string `json:"Text"`
}

func (c *Client) searchInstant(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_redirect", "1")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	body, err := c.get(ctx, c.apiURL, params, "application/json", maxJSONBytes)
	if err != nil {
		return "", err
	}

	var data instantResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("failed to decode instant answer: %w", err)
	}

	if text := strings.TrimSpace(data.AbstractText); text != "" {
		return "Search result: " + text, nil
	}

	// Only the first few entries are considered; grouped entries carry no Text.
	topics := data.RelatedTopics
	if len(topics) > c.maxResults {
		topics = topics[:c.maxResults]
	}
	var texts []string
	for _, t := range topics {
		if text := strings.TrimSpace(t.Text); text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) > 0 {
		return "Search results: " + strings.Join(texts, " | "), nil
	}
	return "", nil
}

// =============================================================================
// HTML RESULTS PAGE
// =============================================================================

// Result is one parsed entry from the HTML results page.
type Result struct {
	Title   string
	Snippet string
}

func (c *Client) searchHTML(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)

	body, err := c.get(ctx, c.htmlURL, params, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", maxHTMLBytes)
	if err != nil {
		return "", err
	}
	page := string(body)

	results := parseHTML(page, c.maxResults)
	if len(results) > 0 {
		parts := make([]string, 0, len(results))
		for _, r := range results {
			if r.Snippet != "" {
				parts = append(parts, r.Title+": "+r.Snippet)
			} else {
				parts = append(parts, r.Title)
			}
		}
		return "Search results: " + strings.Join(parts, " | "), nil
	}

	if !strings.Contains(page, "No results") {
		return fmt.Sprintf("Found web results for '%s' - search completed successfully.", query), nil
	}
	return "", nil
}

// parseHTML extracts up to max title/snippet pairs from a results page.
//
// Structure (2024+):
//
//	<h2 class="result__title"><a class="result__a" href="...">Title</a></h2>
//	<a class="result__snippet" href="...">Snippet text</a>
func parseHTML(page string, max int) []Result {
	titles := ddgTitleRegex.FindAllStringSubmatch(page, 30)
	snippets := ddgSnippetRegex.FindAllStringSubmatch(page, 30)

	var results []Result
	for i, m := range titles {
		title := cleanHTML(m[1])
		if title == "" {
			continue
		}
		snippet := ""
		if i < len(snippets) {
			snippet = cleanHTML(snippets[i][1])
		}
		results = append(results, Result{Title: title, Snippet: snippet})
		if len(results) >= max {
			break
		}
	}
	return results
}

// cleanHTML strips tags, decodes entities and collapses whitespace.
func cleanHTML(s string) string {
	s = tagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// =============================================================================
// HTTP
// =============================================================================

func (c *Client) get(ctx context.Context, base string, params url.Values, accept string, limit int64) ([]byte, error) {
	if err := c.policy.ValidateURL(base); err != nil {
		return nil, err
	}

	target := base
	if strings.Contains(target, "?") {
		target += "&" + params.Encode()
	} else {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	// Accept-Encoding is left to the transport so it can decompress.
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
