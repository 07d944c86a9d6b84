package joinqueue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestQueue(t *testing.T, joiner Joiner) *Queue {
	t.Helper()
	q := New("acct-1", t.TempDir(), joiner, time.Minute)
	q.wait = func(ctx context.Context, d time.Duration) error { return nil }
	return q
}

func TestExtractInviteCode(t *testing.T) {
	cases := []struct {
		link string
		code string
		ok   bool
	}{
		{"https://chat.whatsapp.com/AbC123xyz", "AbC123xyz", true},
		{"https://chat.whatsapp.com/invite/AbC123xyz", "AbC123xyz", true},
		{"check this https://chat.whatsapp.com/K9_z-Q out", "K9_z-Q", true},
		{"https://example.com/group", "", false},
		{"not a link at all", "", false},
	}
	for _, tc := range cases {
		code, ok := ExtractInviteCode(tc.link)
		if ok != tc.ok || code != tc.code {
			t.Errorf("ExtractInviteCode(%q) = %q, %v; want %q, %v",
				tc.link, code, ok, tc.code, tc.ok)
		}
	}
}

func TestProcessMixedOutcomes(t *testing.T) {
	outcomes := map[string]Outcome{
		"alpha": Joined("123@g.us"),
		"beta":  Pending("participant requires admin approval"),
		"gamma": Failed("group is full"),
	}
	var calls int32
	q := newTestQueue(t, JoinerFunc(func(ctx context.Context, code string) (Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return outcomes[code], nil
	}))

	added, err := q.Add(
		"https://chat.whatsapp.com/alpha",
		"https://chat.whatsapp.com/beta",
		"https://chat.whatsapp.com/gamma",
	)
	if err != nil || added != 3 {
		t.Fatalf("Add = %d, %v; want 3, nil", added, err)
	}

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("joiner called %d times, want 3", got)
	}
	if left := q.Pending(); len(left) != 0 {
		t.Fatalf("queue not drained: %v", left)
	}

	rep := q.Report()
	if len(rep.Joined) != 1 || rep.Joined[0].JID != "123@g.us" {
		t.Errorf("joined = %+v", rep.Joined)
	}
	if len(rep.Pending) != 1 || rep.Pending[0].Reason != "participant requires admin approval" {
		t.Errorf("pending = %+v", rep.Pending)
	}
	if len(rep.Failed) != 1 || rep.Failed[0].Reason != "group is full" {
		t.Errorf("failed = %+v", rep.Failed)
	}
}

func TestProcessMalformedLinkSkipsNetworkAndDelay(t *testing.T) {
	var calls, waits int32
	q := newTestQueue(t, JoinerFunc(func(ctx context.Context, code string) (Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return Joined("1@g.us"), nil
	}))
	q.wait = func(ctx context.Context, d time.Duration) error {
		atomic.AddInt32(&waits, 1)
		return nil
	}

	if _, err := q.Add("https://example.com/not-an-invite"); err != nil {
		t.Fatal(err)
	}
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if calls != 0 {
		t.Errorf("joiner called for malformed link")
	}
	if waits != 0 {
		t.Errorf("delay applied to malformed link")
	}
	rep := q.Report()
	if len(rep.Failed) != 1 || rep.Failed[0].Reason != "invalid invite link" {
		t.Fatalf("failed = %+v", rep.Failed)
	}
}

func TestProcessEmptyQueueIsNoop(t *testing.T) {
	q := newTestQueue(t, JoinerFunc(func(ctx context.Context, code string) (Outcome, error) {
		t.Fatal("joiner should not run")
		return Outcome{}, nil
	}))
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process on empty queue: %v", err)
	}
	// A second pass after draining behaves the same.
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("second Process: %v", err)
	}
}

func TestAddDeduplicatesQueuedLinks(t *testing.T) {
	q := newTestQueue(t, JoinerFunc(func(ctx context.Context, code string) (Outcome, error) {
		return Joined("1@g.us"), nil
	}))
	if added, _ := q.Add("https://chat.whatsapp.com/a", "https://chat.whatsapp.com/a"); added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if added, _ := q.Add("https://chat.whatsapp.com/a"); added != 0 {
		t.Fatalf("re-add = %d, want 0", added)
	}
	if got := q.Pending(); len(got) != 1 {
		t.Fatalf("pending = %v", got)
	}
}

func TestOutcomePersistedBeforeQueueRemoval(t *testing.T) {
	dir := t.TempDir()
	q := New("acct-1", dir, nil, time.Minute)
	q.wait = func(ctx context.Context, d time.Duration) error { return nil }

	// The joiner inspects the files mid-pass: when it runs, the link must
	// still be queued, and once the report shows the outcome the queue
	// entry disappears only afterwards.
	q.joiner = JoinerFunc(func(ctx context.Context, code string) (Outcome, error) {
		if got := q.Pending(); len(got) != 1 {
			t.Errorf("link removed from queue before outcome recorded: %v", got)
		}
		return Joined("9@g.us"), nil
	})

	if _, err := q.Add("https://chat.whatsapp.com/abc"); err != nil {
		t.Fatal(err)
	}
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Both files reflect the finished pass on disk.
	var rep Report
	data, err := os.ReadFile(filepath.Join(dir, reportFile))
	if err != nil {
		t.Fatalf("report file: %v", err)
	}
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("report parse: %v", err)
	}
	if len(rep.Joined) != 1 || rep.Joined[0].JID != "9@g.us" {
		t.Fatalf("persisted report = %+v", rep)
	}
	if left := q.Pending(); len(left) != 0 {
		t.Fatalf("queue file not drained: %v", left)
	}
}

func TestProcessHaltsWhenJoinerUnavailable(t *testing.T) {
	unavailable := errors.New("connection not open")
	var calls int32
	q := newTestQueue(t, JoinerFunc(func(ctx context.Context, code string) (Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return Outcome{}, unavailable
	}))

	if _, err := q.Add("https://chat.whatsapp.com/RealInvite123"); err != nil {
		t.Fatal(err)
	}
	err := q.Process(context.Background())
	if !errors.Is(err, unavailable) {
		t.Fatalf("Process error = %v, want the joiner's error", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("joiner called %d times, want 1", got)
	}

	// The pass halted: the link is still queued and nothing was recorded.
	if left := q.Pending(); len(left) != 1 {
		t.Fatalf("queue = %v, want the link kept", left)
	}
	rep := q.Report()
	if len(rep.Joined)+len(rep.Pending)+len(rep.Failed) != 0 {
		t.Fatalf("report not empty after halted pass: %+v", rep)
	}

	// A later pass with the connection back picks the link up again.
	q.joiner = JoinerFunc(func(ctx context.Context, code string) (Outcome, error) {
		return Joined("7@g.us"), nil
	})
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("retry pass: %v", err)
	}
	if got := q.Report(); len(got.Joined) != 1 {
		t.Fatalf("joined = %+v", got.Joined)
	}
}

func TestExpireOldPending(t *testing.T) {
	q := newTestQueue(t, nil)

	rep := Report{Pending: []Entry{
		{Link: "old", Reason: "awaiting approval", Time: time.Now().Add(-48 * time.Hour)},
		{Link: "fresh", Reason: "awaiting approval", Time: time.Now().Add(-time.Hour)},
	}}
	if err := q.storeReport(rep); err != nil {
		t.Fatal(err)
	}

	moved, err := q.ExpireOldPending(24 * time.Hour)
	if err != nil {
		t.Fatalf("ExpireOldPending: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}

	got := q.Report()
	if len(got.Pending) != 1 || got.Pending[0].Link != "fresh" {
		t.Errorf("pending = %+v", got.Pending)
	}
	if len(got.Expired) != 1 || got.Expired[0].Link != "old" {
		t.Errorf("expired = %+v", got.Expired)
	}

	// Second run finds nothing left to expire.
	if moved, _ := q.ExpireOldPending(24 * time.Hour); moved != 0 {
		t.Fatalf("second expire moved %d", moved)
	}
}

func TestConcurrentProcessAndExpireLosesNoOutcome(t *testing.T) {
	q := newTestQueue(t, JoinerFunc(func(ctx context.Context, code string) (Outcome, error) {
		return Joined(code + "@g.us"), nil
	}))

	// Stale pending entry for the expiry pass to move.
	seed := Report{Pending: []Entry{
		{Link: "old", Reason: "awaiting approval", Time: time.Now().Add(-48 * time.Hour)},
	}}
	if err := q.storeReport(seed); err != nil {
		t.Fatal(err)
	}

	links := []string{
		"https://chat.whatsapp.com/gA",
		"https://chat.whatsapp.com/gB",
		"https://chat.whatsapp.com/gC",
	}
	if _, err := q.Add(links...); err != nil {
		t.Fatal(err)
	}

	// Both writers run against the same instance, serialized by its mutex.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := q.Process(context.Background()); err != nil {
			t.Errorf("Process: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := q.ExpireOldPending(24 * time.Hour); err != nil {
			t.Errorf("ExpireOldPending: %v", err)
		}
	}()
	wg.Wait()

	rep := q.Report()
	if len(rep.Joined) != len(links) {
		t.Fatalf("joined = %+v, want %d entries", rep.Joined, len(links))
	}
	if len(rep.Expired) != 1 || rep.Expired[0].Link != "old" {
		t.Fatalf("expired = %+v", rep.Expired)
	}
}

func TestCorruptQueueFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, queueFile), []byte("{{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	q := New("acct-1", dir, nil, time.Minute)
	if got := q.Pending(); len(got) != 0 {
		t.Fatalf("pending from corrupt file = %v", got)
	}
	if added, err := q.Add("https://chat.whatsapp.com/x"); err != nil || added != 1 {
		t.Fatalf("Add after corruption = %d, %v", added, err)
	}
}
