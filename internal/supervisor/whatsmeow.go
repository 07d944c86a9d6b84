package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// WhatsmeowProvider implements Provider on top of the whatsmeow client.
// Each account gets its own session database under its state directory.
type WhatsmeowProvider struct {
	client    *whatsmeow.Client
	container *sqlstore.Container

	mu      sync.Mutex
	handler func(Event)
}

// NewWhatsmeowProvider opens (or creates) the account's session store in
// dir and builds the client around its first device.
func NewWhatsmeowProvider(ctx context.Context, dir string) (*WhatsmeowProvider, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create account dir: %w", err)
	}
	dbPath := filepath.Join(dir, "session.db")
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", waLog.Stdout("Database", "WARN", true))
	if err != nil {
		return nil, fmt.Errorf("failed to init session db: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	p := &WhatsmeowProvider{
		client:    whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "WARN", true)),
		container: container,
	}
	p.client.AddEventHandler(p.handleClientEvent)
	return p, nil
}

func (p *WhatsmeowProvider) SetHandler(h func(Event)) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *WhatsmeowProvider) emit(evt Event) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (p *WhatsmeowProvider) HasSession() bool {
	return p.client.Store.ID != nil
}

func (p *WhatsmeowProvider) Connect(ctx context.Context) error {
	if p.client.Store.ID == nil {
		qrChan, err := p.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					p.emit(QRCode{Code: evt.Code})
				}
			}
		}()
	}
	if err := p.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (p *WhatsmeowProvider) Disconnect() {
	p.client.Disconnect()
}

func (p *WhatsmeowProvider) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	code, err := p.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", fmt.Errorf("failed to request pairing code: %w", err)
	}
	return code, nil
}

func (p *WhatsmeowProvider) JoinGroup(ctx context.Context, inviteCode string) (string, error) {
	jid, err := p.client.JoinGroupWithLink(ctx, inviteCode)
	if err != nil {
		return "", err
	}
	return jid.String(), nil
}

func (p *WhatsmeowProvider) SendText(ctx context.Context, chatID, text string) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}
	_, err = p.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}

func (p *WhatsmeowProvider) Logout(ctx context.Context) error {
	return p.client.Logout(ctx)
}

// Close releases the client and the session store.
func (p *WhatsmeowProvider) Close() {
	p.client.Disconnect()
	p.container.Close()
}

func (p *WhatsmeowProvider) handleClientEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		p.emit(Connected{})

	case *events.Disconnected:
		p.emit(Disconnected{Reason: "stream closed"})

	case *events.StreamError:
		p.emit(Disconnected{Reason: "stream error: " + v.Code})

	case *events.LoggedOut:
		p.emit(LoggedOut{Reason: v.Reason.String()})

	case *events.Message:
		if v.Info.IsFromMe {
			return
		}
		content := v.Message.GetConversation()
		if content == "" {
			content = v.Message.GetExtendedTextMessage().GetText()
		}
		if content == "" {
			return
		}
		p.emit(Message{
			ChatID:     v.Info.Chat.String(),
			SenderID:   v.Info.Sender.User,
			SenderName: v.Info.PushName,
			Content:    content,
			IsGroup:    v.Info.IsGroup,
			Timestamp:  v.Info.Timestamp,
		})
	}
}
