package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sethvargo/go-retry"
)

// StatusPageSource scrapes a community status page for mirror URLs.
type StatusPageSource struct {
	url         string
	urlKeywords []string
	client      *http.Client
	retryCount  uint64
	retryDelay  time.Duration
}

// NewStatusPageSource creates a status page seed source.
func NewStatusPageSource(pageURL string, urlKeywords []string, retryCount int, retryDelay time.Duration) *StatusPageSource {
	if retryCount <= 0 {
		retryCount = 3
	}
	if retryDelay == 0 {
		retryDelay = 2 * time.Second
	}
	return &StatusPageSource{
		url:         pageURL,
		urlKeywords: urlKeywords,
		client:      &http.Client{Timeout: 15 * time.Second},
		retryCount:  uint64(retryCount),
		retryDelay:  retryDelay,
	}
}

// Name identifies the source in logs.
func (s *StatusPageSource) Name() string {
	return fmt.Sprintf("status-page(%s)", s.url)
}

// Fetch downloads the status page and extracts candidate base URLs,
// retrying transient failures with backoff.
func (s *StatusPageSource) Fetch(ctx context.Context) ([]string, error) {
	var doc *goquery.Document

	backoff := retry.WithMaxRetries(s.retryCount, retry.NewExponential(s.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", probeUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("status page returned %s", resp.Status)
			if resp.StatusCode >= http.StatusInternalServerError {
				return retry.RetryableError(err)
			}
			return err
		}

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.url, err)
	}

	seen := make(map[string]struct{})
	var urls []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		base, ok := s.candidateBase(href)
		if !ok {
			return
		}
		if _, dup := seen[base]; dup {
			return
		}
		seen[base] = struct{}{}
		urls = append(urls, base)
	})
	return urls, nil
}

// candidateBase extracts scheme://host from a link whose URL matches one of
// the mirror keywords.
func (s *StatusPageSource) candidateBase(href string) (string, bool) {
	if !strings.HasPrefix(href, "http") {
		return "", false
	}

	lower := strings.ToLower(href)
	matched := false
	for _, kw := range s.urlKeywords {
		if strings.Contains(lower, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}
