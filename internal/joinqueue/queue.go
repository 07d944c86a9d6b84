package joinqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	queueFile  = "join-queue.json"
	reportFile = "join-report.json"
)

// Entry is one recorded outcome in the report file.
type Entry struct {
	Link   string    `json:"link"`
	JID    string    `json:"jid,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Time   time.Time `json:"time"`
}

// Report accumulates join outcomes per terminal (and pending) bucket.
type Report struct {
	Joined  []Entry `json:"joined"`
	Pending []Entry `json:"pending"`
	Failed  []Entry `json:"failed"`
	Expired []Entry `json:"expired,omitempty"`
}

type queueState struct {
	Links []string `json:"links"`
}

// Queue is a per-account, strictly sequential group-join queue. Pending
// links live in the queue file; every processed link moves into the report
// before it leaves the queue, so a crash mid-pass never loses an outcome.
type Queue struct {
	accountID string
	dir       string
	joiner    Joiner
	delay     time.Duration

	// wait is swapped out in tests to skip the inter-join delay.
	wait func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

// New returns a queue rooted at dir (the account's state directory). delay
// is the pause between consecutive network joins.
func New(accountID, dir string, joiner Joiner, delay time.Duration) *Queue {
	return &Queue{
		accountID: accountID,
		dir:       dir,
		joiner:    joiner,
		delay:     delay,
		wait:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Add appends links to the persisted queue. Duplicates already queued are
// kept out; the report is not consulted, a link may be retried after a
// failed pass by re-adding it.
func (q *Queue) Add(links ...string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.loadQueue()
	seen := make(map[string]bool, len(st.Links))
	for _, l := range st.Links {
		seen[l] = true
	}
	added := 0
	for _, l := range links {
		if seen[l] {
			continue
		}
		st.Links = append(st.Links, l)
		seen[l] = true
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, q.storeQueue(st)
}

// Pending returns the links still waiting in the queue.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadQueue().Links
}

// Report returns the persisted outcome report.
func (q *Queue) Report() Report {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadReport()
}

// Process runs one pass over the queue. Each link is joined in order; its
// outcome is appended to the report and persisted, and only then is the
// link removed from the queue file. Malformed links fail immediately with
// no network call and no delay. When the joiner reports it cannot attempt
// a join (connection not open), the pass halts and the link stays queued
// for the next pass. Processing an empty queue is a no-op.
func (q *Queue) Process(ctx context.Context) error {
	for {
		link, ok := q.head()
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		code, valid := ExtractInviteCode(link)
		var out Outcome
		if !valid {
			out = Failed("invalid invite link")
		} else {
			var err error
			out, err = q.joiner.JoinGroup(ctx, code)
			if err != nil {
				return fmt.Errorf("join halted, %s stays queued: %w", link, err)
			}
		}

		if err := q.record(link, out); err != nil {
			return fmt.Errorf("record outcome for %s: %w", link, err)
		}
		slog.Info("join processed",
			"account", q.accountID, "link", link, "status", out.Status)

		// No delay for links that never reached the network.
		if valid {
			if err := q.wait(ctx, q.delay); err != nil {
				return err
			}
		}
	}
}

// ExpireOldPending moves pending entries older than maxAge into the
// terminal expired bucket. Returns how many entries moved.
func (q *Queue) ExpireOldPending(maxAge time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rep := q.loadReport()
	cutoff := time.Now().Add(-maxAge)
	kept := rep.Pending[:0]
	moved := 0
	for _, e := range rep.Pending {
		if e.Time.Before(cutoff) {
			e.Reason = "approval window elapsed"
			e.Time = time.Now().UTC()
			rep.Expired = append(rep.Expired, e)
			moved++
			continue
		}
		kept = append(kept, e)
	}
	if moved == 0 {
		return 0, nil
	}
	rep.Pending = kept
	return moved, q.storeReport(rep)
}

func (q *Queue) head() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.loadQueue()
	if len(st.Links) == 0 {
		return "", false
	}
	return st.Links[0], true
}

// record persists the outcome first, then drops the link from the queue.
func (q *Queue) record(link string, out Outcome) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rep := q.loadReport()
	e := Entry{Link: link, Time: time.Now().UTC()}
	switch out.Status {
	case StatusJoined:
		e.JID = out.GroupJID
		rep.Joined = append(rep.Joined, e)
	case StatusPending:
		e.Reason = out.Reason
		rep.Pending = append(rep.Pending, e)
	default:
		e.Reason = out.Reason
		rep.Failed = append(rep.Failed, e)
	}
	if err := q.storeReport(rep); err != nil {
		return err
	}

	st := q.loadQueue()
	for i, l := range st.Links {
		if l == link {
			st.Links = append(st.Links[:i], st.Links[i+1:]...)
			break
		}
	}
	return q.storeQueue(st)
}

func (q *Queue) loadQueue() queueState {
	var st queueState
	readJSON(filepath.Join(q.dir, queueFile), &st, q.accountID)
	return st
}

func (q *Queue) storeQueue(st queueState) error {
	return writeJSON(filepath.Join(q.dir, queueFile), st)
}

func (q *Queue) loadReport() Report {
	var rep Report
	readJSON(filepath.Join(q.dir, reportFile), &rep, q.accountID)
	return rep
}

func (q *Queue) storeReport(rep Report) error {
	return writeJSON(filepath.Join(q.dir, reportFile), rep)
}

// readJSON loads path into v, tolerating missing or corrupt files: the
// caller proceeds with zero-value state and the damage is logged.
func readJSON(path string, v any, accountID string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("join queue file unreadable, starting empty",
				"account", accountID, "path", path, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("join queue file corrupt, starting empty",
			"account", accountID, "path", path, "error", err)
	}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
