package joinqueue

import "context"

// Status names the result of a single join attempt.
type Status string

const (
	StatusJoined  Status = "joined"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Outcome is the result of one join attempt. Exactly one of GroupJID or
// Reason is meaningful, selected by Status.
type Outcome struct {
	Status   Status
	GroupJID string
	Reason   string
}

func Joined(jid string) Outcome { return Outcome{Status: StatusJoined, GroupJID: jid} }

func Pending(reason string) Outcome { return Outcome{Status: StatusPending, Reason: reason} }

func Failed(reason string) Outcome { return Outcome{Status: StatusFailed, Reason: reason} }

// Joiner performs the actual group join against the provider. Attempt
// results come back through the Outcome value; a join that needs admin
// approval is Pending with the provider's message as reason. A non-nil
// error means the join could not be attempted at all (the connection is
// not open) — the queue halts its pass and the link stays queued.
type Joiner interface {
	JoinGroup(ctx context.Context, inviteCode string) (Outcome, error)
}

// JoinerFunc adapts a function to the Joiner interface.
type JoinerFunc func(ctx context.Context, inviteCode string) (Outcome, error)

func (f JoinerFunc) JoinGroup(ctx context.Context, inviteCode string) (Outcome, error) {
	return f(ctx, inviteCode)
}
