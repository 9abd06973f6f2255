package parse

import (
	"testing"
	"time"
)

const fixtureTimeline = `
<html><body>
<div class="timeline">
  <div class="timeline-item">
    <a class="tweet-link" href="/alice/status/103#m"></a>
    <a class="username">@alice</a>
    <span class="tweet-date"><a title="Dec 22, 2025 · 9:00 AM UTC">9h</a></span>
    <div class="tweet-content">ETF approval confirmed</div>
    <div class="attachments"><img src="https://cdn.example/pic1.jpg"/></div>
  </div>
  <div class="timeline-item">
    <a class="tweet-link" href="/alice/status/102"></a>
    <a class="username">@alice</a>
    <span class="tweet-date"><a title="Dec 22, 2025 · 8:00 AM UTC">10h</a></span>
    <div class="tweet-content">gm</div>
  </div>
  <div class="timeline-item">
    <div class="tweet-content">no link, should be skipped</div>
  </div>
</div>
</body></html>`

func TestTimeline_ExtractsItems(t *testing.T) {
	items, err := Timeline(fixtureTimeline, "alice")
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ExternalID != "103" {
		t.Errorf("expected id 103, got %s", first.ExternalID)
	}
	if first.Author != "alice" {
		t.Errorf("expected author alice, got %s", first.Author)
	}
	if first.Content != "ETF approval confirmed" {
		t.Errorf("unexpected content: %q", first.Content)
	}
	if len(first.MediaRefs) != 1 || first.MediaRefs[0] != "https://cdn.example/pic1.jpg" {
		t.Errorf("unexpected media refs: %v", first.MediaRefs)
	}

	want := time.Date(2025, 12, 22, 9, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Errorf("expected published at %s, got %s", want, first.PublishedAt)
	}

	if items[1].ExternalID != "102" {
		t.Errorf("expected second id 102, got %s", items[1].ExternalID)
	}
}

func TestTimeline_NoMatch(t *testing.T) {
	items, err := Timeline("<html><body><p>totally different site</p></body></html>", "alice")
	if err != nil {
		t.Fatalf("Timeline failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestStatusID(t *testing.T) {
	cases := []struct {
		href string
		want string
		ok   bool
	}{
		{"/alice/status/12345", "12345", true},
		{"/alice/status/12345#m", "12345", true},
		{"/alice/with_replies", "", false},
		{"/alice/status/", "", false},
	}
	for _, tc := range cases {
		got, ok := statusID(tc.href)
		if ok != tc.ok || got != tc.want {
			t.Errorf("statusID(%q) = (%q, %v), want (%q, %v)", tc.href, got, ok, tc.want, tc.ok)
		}
	}
}
