package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/skip2/go-qrcode"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/config"
	"github.com/waharvest/waharvest/internal/creds"
	"github.com/waharvest/waharvest/internal/joinqueue"
)

var (
	// ErrAlreadyActive is returned by Connect when a live connection
	// attempt or open connection exists for the account.
	ErrAlreadyActive = errors.New("connection already open or connecting")

	// ErrTerminal is returned once the account reached its terminal state.
	ErrTerminal = errors.New("account is logged out")

	// ErrNotOpen is returned by send operations outside the OPEN state.
	ErrNotOpen = errors.New("connection not open")

	// ErrPairCodeIssued is returned when a second pairing code is
	// requested within the same connection attempt.
	ErrPairCodeIssued = errors.New("pairing code already requested for this attempt")
)

// Supervisor drives one account's connection lifecycle. It is the sole
// writer of the account's state and publishes transitions and inbound
// messages onto the event bus.
type Supervisor struct {
	accountID string
	dir       string
	provider  Provider
	creds     *creds.Store
	bus       *bus.EventBus
	cfg       config.ConnectionConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	state           State
	pairRequested   bool
	reconnecting    bool
	cancelReconnect context.CancelFunc

	// wait is swapped in tests to skip real delays.
	wait func(ctx context.Context, d time.Duration) error
}

// New wires a supervisor for one account. dir is the account's state
// directory (QR tokens land there). The provider's event handler is
// registered immediately.
func New(accountID, dir string, p Provider, cs *creds.Store, eb *bus.EventBus, cfg config.ConnectionConfig) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		accountID: accountID,
		dir:       dir,
		provider:  p,
		creds:     cs,
		bus:       eb,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateInit,
		wait:      sleepCtx,
	}
	p.SetHandler(s.handleEvent)
	return s
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

// AccountID returns the account this supervisor owns.
func (s *Supervisor) AccountID() string { return s.accountID }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QRPath is where the latest pairing token image is written.
func (s *Supervisor) QRPath() string {
	return filepath.Join(s.dir, "pair-qr.png")
}

// Connect starts a connection attempt. It fails fast while an attempt is
// already live (awaiting pairing, connecting or open), and permanently
// once the account is logged out. A fresh attempt resets the
// pairing-code guard.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateOpen, StateConnecting, StateAwaitingPair:
		s.mu.Unlock()
		return fmt.Errorf("account %s: %w", s.accountID, ErrAlreadyActive)
	case StateClosedTerminal:
		s.mu.Unlock()
		return fmt.Errorf("account %s: %w", s.accountID, ErrTerminal)
	}
	s.pairRequested = false
	if _, err := s.creds.Load(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("account %s: load credentials: %w", s.accountID, err)
	}
	if s.creds.HasValidSession() && s.provider.HasSession() {
		s.transitionLocked(StateConnecting, "restoring session")
	} else {
		s.transitionLocked(StateAwaitingPair, "credential exchange required")
	}
	s.mu.Unlock()

	if err := s.provider.Connect(ctx); err != nil {
		s.transition(StateClosedRecoverable, err.Error())
		s.scheduleReconnect()
		return fmt.Errorf("account %s: connect: %w", s.accountID, err)
	}
	return nil
}

// PairingCode requests a phone-pairing code from the provider. Allowed
// only while awaiting credential exchange, and at most once per attempt.
func (s *Supervisor) PairingCode(ctx context.Context, phone string) (string, error) {
	if !creds.ValidPhoneNumber(phone) {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}
	s.mu.Lock()
	if s.state != StateAwaitingPair {
		st := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("account %s: cannot pair in state %s", s.accountID, st)
	}
	if s.pairRequested {
		s.mu.Unlock()
		return "", fmt.Errorf("account %s: %w", s.accountID, ErrPairCodeIssued)
	}
	s.pairRequested = true
	s.mu.Unlock()

	code, err := s.provider.RequestPairingCode(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("account %s: pairing code: %w", s.accountID, err)
	}
	return code, nil
}

// JoinGroup performs one group join through the open connection. Outside
// the OPEN state no attempt is made and ErrNotOpen is returned, so the
// queue keeps the link for a later pass. The provider cannot reliably
// distinguish "awaiting admin approval" from a hard rejection, so any
// provider error is optimistically classified as pending with the error
// text as reason.
func (s *Supervisor) JoinGroup(ctx context.Context, inviteCode string) (joinqueue.Outcome, error) {
	if s.State() != StateOpen {
		return joinqueue.Outcome{}, fmt.Errorf("account %s: %w", s.accountID, ErrNotOpen)
	}
	jid, err := s.provider.JoinGroup(ctx, inviteCode)
	if err != nil {
		return joinqueue.Pending(err.Error()), nil
	}
	return joinqueue.Joined(jid), nil
}

// SendText delivers a single text message, bounded by the configured
// send timeout.
func (s *Supervisor) SendText(ctx context.Context, chatID, text string) error {
	if s.State() != StateOpen {
		return fmt.Errorf("account %s: %w", s.accountID, ErrNotOpen)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return s.provider.SendText(ctx, chatID, text)
}

// BulkSend delivers text to each chat in order, pausing between sends to
// stay under the platform's outbound rate ceiling. Per-chat failures are
// collected; the pass continues past them.
func (s *Supervisor) BulkSend(ctx context.Context, chatIDs []string, text string) (int, map[string]error) {
	sent := 0
	failed := make(map[string]error)
	for i, chatID := range chatIDs {
		if i > 0 {
			if err := s.wait(ctx, s.cfg.BulkSendDelay); err != nil {
				failed[chatID] = err
				return sent, failed
			}
		}
		if err := s.SendText(ctx, chatID, text); err != nil {
			failed[chatID] = err
			continue
		}
		sent++
	}
	return sent, failed
}

// Logout invalidates the session. The account deterministically reaches
// the terminal state even when the provider call fails; credentials are
// archived, never deleted.
func (s *Supervisor) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosedTerminal {
		s.mu.Unlock()
		return nil
	}
	if s.cancelReconnect != nil {
		s.cancelReconnect()
		s.cancelReconnect = nil
	}
	s.mu.Unlock()

	if err := s.provider.Logout(ctx); err != nil {
		slog.Warn("provider logout failed, forcing terminal state",
			"account", s.accountID, "error", err)
	}
	s.provider.Disconnect()
	if err := s.creds.Archive(); err != nil {
		slog.Warn("credential archive failed",
			"account", s.accountID, "error", err)
	}
	s.transition(StateClosedTerminal, "logged out")
	s.cancel()
	return nil
}

// Close releases the connection without invalidating credentials, for
// process shutdown. The account can reconnect on next start.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.cancelReconnect != nil {
		s.cancelReconnect()
		s.cancelReconnect = nil
	}
	s.mu.Unlock()
	s.cancel()
	s.provider.Disconnect()
}

func (s *Supervisor) handleEvent(evt Event) {
	switch e := evt.(type) {
	case Connected:
		s.mu.Lock()
		// Pairing completed while awaiting exchange still passes
		// through CONNECTING before OPEN.
		if s.state == StateAwaitingPair {
			s.transitionLocked(StateConnecting, "credentials exchanged")
		}
		s.pairRequested = false
		s.transitionLocked(StateOpen, "connection established")
		s.mu.Unlock()
		if cur := s.creds.Current(); cur != nil {
			if err := s.creds.Save(cur); err != nil {
				slog.Warn("credential save on connect failed",
					"account", s.accountID, "error", err)
			}
		}

	case Disconnected:
		s.mu.Lock()
		if s.state == StateClosedTerminal {
			s.mu.Unlock()
			return
		}
		s.transitionLocked(StateClosedRecoverable, e.Reason)
		s.mu.Unlock()
		s.scheduleReconnect()

	case LoggedOut:
		s.mu.Lock()
		if s.cancelReconnect != nil {
			s.cancelReconnect()
			s.cancelReconnect = nil
		}
		s.mu.Unlock()
		if err := s.creds.Archive(); err != nil {
			slog.Warn("credential archive failed",
				"account", s.accountID, "error", err)
		}
		reason := "logged out"
		if e.Reason != "" {
			reason = "logged out: " + e.Reason
		}
		s.transition(StateClosedTerminal, reason)
		s.cancel()

	case QRCode:
		if err := qrcode.WriteFile(e.Code, qrcode.Medium, 512, s.QRPath()); err != nil {
			slog.Warn("failed to write pairing token image",
				"account", s.accountID, "error", err)
			return
		}
		slog.Info("pairing token refreshed",
			"account", s.accountID, "path", s.QRPath())

	case Message:
		if s.bus == nil {
			return
		}
		s.bus.PublishInbound(&bus.InboundMessage{
			AccountID:  s.accountID,
			ChatID:     e.ChatID,
			SenderID:   e.SenderID,
			SenderName: e.SenderName,
			Content:    e.Content,
			IsGroup:    e.IsGroup,
			Timestamp:  e.Timestamp,
		})
	}
}

// scheduleReconnect runs a bounded reconnect loop: a fixed delay before
// each attempt, capped by ReconnectMaxRetries (zero means unbounded).
// At most one loop runs at a time; exhaustion is terminal.
func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	if s.reconnecting || s.state == StateClosedTerminal {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelReconnect = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.reconnecting = false
			s.mu.Unlock()
		}()

		// Fixed delay before the first attempt; go-retry spaces the rest.
		if err := s.wait(ctx, s.cfg.ReconnectDelay); err != nil {
			return
		}

		b := retry.NewConstant(s.cfg.ReconnectDelay)
		if s.cfg.ReconnectMaxRetries > 0 {
			b = retry.WithMaxRetries(s.cfg.ReconnectMaxRetries, b)
		}
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			s.mu.Lock()
			if s.state == StateClosedTerminal {
				s.mu.Unlock()
				return nil
			}
			s.pairRequested = false
			s.transitionLocked(StateConnecting, "reconnecting")
			s.mu.Unlock()

			if err := s.provider.Connect(ctx); err != nil {
				s.transition(StateClosedRecoverable, err.Error())
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			s.transition(StateClosedTerminal, "reconnect attempts exhausted")
		}
	}()
}

func (s *Supervisor) transition(to State, reason string) {
	s.mu.Lock()
	s.transitionLocked(to, reason)
	s.mu.Unlock()
}

func (s *Supervisor) transitionLocked(to State, reason string) {
	if s.state == to {
		return
	}
	if !canTransition(s.state, to) {
		slog.Warn("illegal state transition suppressed",
			"account", s.accountID, "from", s.state, "to", to)
		return
	}
	slog.Info("connection state changed",
		"account", s.accountID, "from", s.state, "to", to, "reason", reason)
	s.state = to
	if s.bus != nil {
		s.bus.PublishState(&bus.StateEvent{
			AccountID: s.accountID,
			State:     to.String(),
			Reason:    reason,
		})
	}
}
