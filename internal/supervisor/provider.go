package supervisor

import (
	"context"
	"time"
)

// Event is a notification pushed by the connection provider. Concrete
// types below; consumers switch on the type.
type Event any

// Connected fires when the socket reaches the authenticated open state.
type Connected struct{}

// Disconnected fires on any recoverable close (network drop, stream error).
type Disconnected struct {
	Reason string
}

// LoggedOut fires when the platform invalidates the session. Terminal;
// only re-pairing recovers the account.
type LoggedOut struct {
	Reason string
}

// QRCode carries a fresh scannable pairing token. The provider emits a
// new one each time the previous token expires unscanned.
type QRCode struct {
	Code string
}

// Message is an inbound chat message with sender metadata.
type Message struct {
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
	IsGroup    bool
	Timestamp  time.Time
}

// Provider abstracts the platform connection client. The real
// implementation wraps whatsmeow; tests substitute a fake.
type Provider interface {
	// HasSession reports whether stored device credentials exist, i.e.
	// whether Connect can restore a session without pairing.
	HasSession() bool

	// SetHandler registers the single event sink. Must be called before
	// Connect.
	SetHandler(h func(Event))

	// Connect opens the socket. When no session exists the provider
	// begins credential exchange and emits QRCode events until paired.
	Connect(ctx context.Context) error

	// Disconnect closes the socket without invalidating credentials.
	Disconnect()

	// RequestPairingCode asks the platform for a short phone-pairing
	// code as an alternative to scanning the QR token.
	RequestPairingCode(ctx context.Context, phone string) (string, error)

	// JoinGroup joins a group via invite code, returning the resolved
	// group identifier.
	JoinGroup(ctx context.Context, inviteCode string) (groupJID string, err error)

	// SendText delivers a plain text message to a chat.
	SendText(ctx context.Context, chatID, text string) error

	// Logout invalidates the session on the platform side.
	Logout(ctx context.Context) error
}
