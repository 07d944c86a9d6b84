package links

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/waharvest/waharvest/internal/bus"
)

func TestExtractTwoURLs(t *testing.T) {
	text := "check this out https://chat.whatsapp.com/abc123 and http://shop.example"
	urls := Extract(text)
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d: %v", len(urls), urls)
	}
	if urls[0] != "https://chat.whatsapp.com/abc123" || urls[1] != "http://shop.example" {
		t.Fatalf("unexpected urls: %v", urls)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	if got := Extract(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := Extract("no links here"); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestClassifyKnownDomains(t *testing.T) {
	cases := map[string]Category{
		"https://chat.whatsapp.com/AbCdEf":  CategoryWhatsApp,
		"https://wa.me/15551234567":         CategoryWhatsApp,
		"https://t.me/somechannel":          CategoryTelegram,
		"https://www.facebook.com/groups/1": CategoryFacebook,
		"https://instagram.com/someone":     CategoryInstagram,
		"https://x.com/someone/status/1":    CategoryTwitter,
		"https://youtu.be/dQw4w9WgXcQ":      CategoryYouTube,
		"https://www.tiktok.com/@someone":   CategoryTikTok,
		"http://shop.example":               CategoryWebsite,
		"https://example.org/page?q=1":      CategoryWebsite,
	}
	for raw, want := range cases {
		if got := Classify(raw); got != want {
			t.Errorf("Classify(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestClassifyTotality(t *testing.T) {
	// Non-URL-shaped strings must still map to exactly one category.
	inputs := []string{"", "not a url", "ftp://host/file", "https://", "::::", "mailto:a@b.c"}
	valid := make(map[Category]bool)
	for _, c := range Categories() {
		valid[c] = true
	}
	for _, in := range inputs {
		got := Classify(in)
		if !valid[got] {
			t.Errorf("Classify(%q) returned unknown category %q", in, got)
		}
		if got != CategoryOther {
			t.Errorf("Classify(%q) = %s, want other", in, got)
		}
	}
}

func TestDedupMonotonic(t *testing.T) {
	existing := []string{"a", "b", "c"}
	incoming := []string{"b", "d", "d", "a"}
	merged := Dedup(existing, incoming)

	want := []string{"a", "b", "c", "d"}
	if len(merged) != len(want) {
		t.Fatalf("unexpected merge: %v", merged)
	}
	for i, u := range want {
		if merged[i] != u {
			t.Fatalf("unexpected merge order: %v", merged)
		}
	}
}

func TestIngestPersistsPerCategory(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline("acc1", dir, nil)

	added, err := p.Ingest(context.Background(), []string{
		"https://chat.whatsapp.com/AbC",
		"https://example.org",
		"https://chat.whatsapp.com/AbC",
	}, "sender", "chat")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 new links, got %d", added)
	}

	if got := p.Links(CategoryWhatsApp); len(got) != 1 {
		t.Fatalf("whatsapp corpus wrong: %v", got)
	}
	if got := p.Links(CategoryWebsite); len(got) != 1 {
		t.Fatalf("website corpus wrong: %v", got)
	}

	// Re-ingesting must be a no-op (set semantics).
	added, err = p.Ingest(context.Background(), []string{"https://example.org"}, "", "")
	if err != nil {
		t.Fatalf("re-ingest failed: %v", err)
	}
	if added != 0 {
		t.Fatalf("duplicate counted as new")
	}

	counts, total := p.Stats()
	if total != 2 || counts[CategoryWhatsApp] != 1 || counts[CategoryWebsite] != 1 {
		t.Fatalf("unexpected stats: %v total=%d", counts, total)
	}
}

func TestIngestToleratesCorruptCategoryFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "links-website.json"), []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	p := NewPipeline("acc1", dir, nil)
	added, err := p.Ingest(context.Background(), []string{"https://example.org"}, "", "")
	if err != nil {
		t.Fatalf("ingest failed on corrupt file: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected link to be ingested, got %d", added)
	}
}

func TestIngestDamagedCategoryFileStillExportsNewLinks(t *testing.T) {
	// A category file with duplicates and blanks (external edit). The
	// compressed merge must not hide genuinely new URLs from the sink.
	dir := t.TempDir()
	damaged := `{"links":["https://a.example","","https://a.example","https://b.example"]}`
	if err := os.WriteFile(filepath.Join(dir, "links-website.json"), []byte(damaged), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	sink := &captureSink{}
	p := NewPipeline("acc1", dir, sink)
	added, err := p.Ingest(context.Background(), []string{"https://a.example", "https://c.example"}, "", "")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if len(sink.recs) != 1 || sink.recs[0].URL != "https://c.example" {
		t.Fatalf("exported = %+v, want only the new URL", sink.recs)
	}
	if got := p.Links(CategoryWebsite); len(got) != 3 {
		t.Fatalf("corpus after repair = %v", got)
	}
}

type captureSink struct {
	mu   sync.Mutex
	recs []Record
}

func (c *captureSink) Publish(ctx context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

func TestHandleMessageForwardsToSink(t *testing.T) {
	sink := &captureSink{}
	p := NewPipeline("acc1", t.TempDir(), sink)

	p.HandleMessage(context.Background(), &bus.InboundMessage{
		AccountID: "acc1",
		SenderID:  "sender1",
		ChatID:    "group1",
		Content:   "join https://chat.whatsapp.com/XYZ now",
	})

	if len(sink.recs) != 1 {
		t.Fatalf("expected 1 exported record, got %d", len(sink.recs))
	}
	rec := sink.recs[0]
	if rec.Category != CategoryWhatsApp || rec.SenderID != "sender1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
