package links

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/waharvest/waharvest/internal/bus"
)

// Record is one harvested link with its classification and provenance.
type Record struct {
	AccountID string    `json:"account_id"`
	URL       string    `json:"url"`
	Category  Category  `json:"category"`
	SenderID  string    `json:"sender_id,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
}

// Sink receives newly-harvested records, e.g. for export to a broker.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
}

// categoryFile is the per-category on-disk corpus format.
type categoryFile struct {
	Links []string `json:"links"`
}

// Pipeline ingests URLs for one account: classify, merge into the
// per-category persisted set, and hand new records to the optional sink.
// Each category lives in its own file so one category's write can never
// corrupt another.
type Pipeline struct {
	accountID string
	dir       string
	sink      Sink
	mu        sync.Mutex
}

// NewPipeline creates a link pipeline writing under dir. sink may be nil.
func NewPipeline(accountID, dir string, sink Sink) *Pipeline {
	return &Pipeline{accountID: accountID, dir: dir, sink: sink}
}

func (p *Pipeline) categoryPath(cat Category) string {
	return filepath.Join(p.dir, fmt.Sprintf("links-%s.json", cat))
}

// load reads a category corpus, treating read or parse failures as "no data
// yet" so a transient read-during-write is never fatal.
func (p *Pipeline) load(cat Category) []string {
	data, err := os.ReadFile(p.categoryPath(cat))
	if err != nil {
		return nil
	}
	var f categoryFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("unreadable category file, treating as empty", "account", p.accountID, "category", cat, "error", err)
		return nil
	}
	return f.Links
}

func (p *Pipeline) store(cat Category, urls []string) error {
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(categoryFile{Links: urls}, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.categoryPath(cat) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p.categoryPath(cat))
}

// Dedup merges incoming into existing with set-union semantics: the result
// contains every existing entry in order, followed by incoming entries not
// already present, with no duplicates.
func Dedup(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, u := range existing {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, u := range incoming {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// Ingest classifies each URL and merges it into that category's persisted
// set. Newly-seen URLs are forwarded to the sink. Returns the number of
// URLs that were not previously known.
func (p *Pipeline) Ingest(ctx context.Context, urls []string, senderID, chatID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byCategory := make(map[Category][]string)
	for _, u := range urls {
		cat := Classify(u)
		byCategory[cat] = append(byCategory[cat], u)
	}

	added := 0
	for cat, incoming := range byCategory {
		existing := p.load(cat)
		known := make(map[string]bool, len(existing))
		for _, u := range existing {
			if u != "" {
				known[u] = true
			}
		}
		merged := Dedup(existing, incoming)
		// Fresh entries are identified by membership, not by slice offset:
		// Dedup may compress a damaged existing set, shifting positions.
		var fresh []string
		for _, u := range merged {
			if !known[u] {
				fresh = append(fresh, u)
			}
		}
		if len(fresh) == 0 && len(merged) == len(existing) {
			continue
		}
		if err := p.store(cat, merged); err != nil {
			return added, fmt.Errorf("persist category %s: %w", cat, err)
		}
		added += len(fresh)
		if p.sink != nil {
			for _, u := range fresh {
				rec := Record{
					AccountID: p.accountID,
					URL:       u,
					Category:  cat,
					SenderID:  senderID,
					ChatID:    chatID,
					FirstSeen: time.Now(),
				}
				if err := p.sink.Publish(ctx, rec); err != nil {
					slog.Warn("link export failed", "account", p.accountID, "url", u, "error", err)
				}
			}
		}
	}
	return added, nil
}

// HandleMessage extracts and ingests every link in an inbound message.
// Intended as an event-bus subscriber; failures are logged, never raised,
// so one bad message cannot stall the account's consumers.
func (p *Pipeline) HandleMessage(ctx context.Context, msg *bus.InboundMessage) {
	urls := Extract(msg.Content)
	if len(urls) == 0 {
		return
	}
	if _, err := p.Ingest(ctx, urls, msg.SenderID, msg.ChatID); err != nil {
		slog.Warn("link ingestion failed", "account", p.accountID, "error", err)
	}
}

// Stats projects category counts and a running total from the persisted
// sets. It is derived state, not an independent source of truth.
func (p *Pipeline) Stats() (map[Category]int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[Category]int)
	total := 0
	for _, cat := range Categories() {
		n := len(p.load(cat))
		if n > 0 {
			counts[cat] = n
			total += n
		}
	}
	return counts, total
}

// Links returns the persisted set for one category.
func (p *Pipeline) Links(cat Category) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(cat)
}
