// Package parse extracts structured items from raw mirror timeline pages.
// The crawler only depends on the Func contract, so the DOM logic here can
// be swapped without touching the scheduling core.
package parse

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// RawItem is the parse output contract for a single timeline entry.
type RawItem struct {
	ExternalID  string
	Author      string
	Content     string
	PublishedAt time.Time
	URL         string
	MediaRefs   []string
}

// Func turns a raw timeline page into parsed items. An empty slice with a
// nil error means the page did not match (treated as endpoint failure by
// the caller).
type Func func(html string, author string) ([]RawItem, error)

const timestampLayout = "Jan 2, 2006 · 3:04 PM MST"

// Timeline parses a mirror timeline page. Items are returned newest-first,
// in document order. Entries that cannot be parsed individually are skipped.
func Timeline(html string, author string) ([]RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var items []RawItem
	doc.Find("div.timeline-item").Each(func(_ int, sel *goquery.Selection) {
		if item, ok := extractItem(sel, author); ok {
			items = append(items, item)
		}
	})
	return items, nil
}

func extractItem(sel *goquery.Selection, author string) (RawItem, bool) {
	href, ok := sel.Find("a.tweet-link").Attr("href")
	if !ok {
		return RawItem{}, false
	}

	id, ok := statusID(href)
	if !ok {
		return RawItem{}, false
	}

	item := RawItem{
		ExternalID: id,
		Author:     author,
		URL:        href,
		Content:    strings.TrimSpace(sel.Find("div.tweet-content").Text()),
	}

	if name := strings.TrimSpace(sel.Find("a.username").First().Text()); name != "" {
		item.Author = strings.TrimPrefix(name, "@")
	}

	item.PublishedAt = parseTimestamp(sel)

	sel.Find("div.attachments img, div.attachments source").Each(func(_ int, m *goquery.Selection) {
		if src, ok := m.Attr("src"); ok && src != "" {
			item.MediaRefs = append(item.MediaRefs, src)
		}
	})

	return item, true
}

// statusID pulls the item id out of a /user/status/<id>[#anchor] link.
func statusID(href string) (string, bool) {
	parts := strings.Split(href, "/")
	if len(parts) < 4 || parts[len(parts)-2] != "status" {
		return "", false
	}
	id, _, _ := strings.Cut(parts[len(parts)-1], "#")
	if id == "" {
		return "", false
	}
	return id, true
}

func parseTimestamp(sel *goquery.Selection) time.Time {
	title, ok := sel.Find("span.tweet-date a").Attr("title")
	if !ok {
		return time.Now().UTC()
	}
	// Mirror pages render "Jan 2, 2006 · 3:04 PM UTC".
	if t, err := time.Parse(timestampLayout, title); err == nil {
		return t.UTC()
	}
	if datePart, _, found := strings.Cut(title, "·"); found {
		if t, err := time.Parse("Jan 2, 2006", strings.TrimSpace(datePart)); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
