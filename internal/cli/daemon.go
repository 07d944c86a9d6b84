package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/waharvest/waharvest/internal/autoreply"
	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/export"
	"github.com/waharvest/waharvest/internal/joinqueue"
	"github.com/waharvest/waharvest/internal/links"
	"github.com/waharvest/waharvest/internal/notify"
	"github.com/waharvest/waharvest/internal/store"
	"github.com/waharvest/waharvest/internal/supervisor"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run all provisioned accounts: harvest links, drain join queues, auto-reply",
	Run:   runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) {
	printHeader("🌐 waharvest Daemon")
	cfg := loadConfig()

	db, err := store.Open(filepath.Join(cfg.Paths.StateDir, "waharvest.db"))
	if err != nil {
		fmt.Printf("Store error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	eb := bus.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eb.Dispatch(ctx)

	var sink links.Sink
	if cfg.Export.KafkaBrokers != "" {
		ks := export.NewKafkaSink(strings.Split(cfg.Export.KafkaBrokers, ","), cfg.Export.TopicPrefix)
		defer ks.Close()
		sink = ks
		fmt.Printf("Export: Kafka (%s)\n", cfg.Export.KafkaBrokers)
	}

	if cfg.Notify.SlackToken != "" && cfg.Notify.SlackChannel != "" {
		notifier := notify.NewSlackNotifier(cfg.Notify.SlackToken, cfg.Notify.SlackChannel)
		eb.SubscribeState(bus.AllAccounts, func(evt *bus.StateEvent) {
			notifier.HandleState(ctx, evt)
		})
		fmt.Printf("Notify: Slack (%s)\n", cfg.Notify.SlackChannel)
	}

	// Audit every inbound message.
	eb.SubscribeInbound(bus.AllAccounts, func(msg *bus.InboundMessage) {
		err := db.RecordMessage(store.MessageRecord{
			AccountID:  msg.AccountID,
			ChatID:     msg.ChatID,
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			Content:    msg.Content,
			IsGroup:    msg.IsGroup,
			Timestamp:  msg.Timestamp,
		})
		if err != nil {
			fmt.Printf("⚠️ Message audit failed: %v\n", err)
		}
	})

	reg := newRegistry(cfg, eb)
	defer reg.CloseAll()

	accounts := reg.List()
	if len(accounts) == 0 {
		fmt.Println("No accounts provisioned. Run 'waharvest account add' first.")
		os.Exit(1)
	}

	// One queue instance per account: the open-state drain and the expiry
	// ticker must share a mutex so the report file has a single writer.
	queues := make(map[string]*joinqueue.Queue)
	var queueBusy sync.Map
	for _, acct := range accounts {
		accountID := acct.ID
		sup, err := reg.Get(accountID)
		if err != nil {
			fmt.Printf("⚠️ Account %s skipped: %v\n", accountID, err)
			continue
		}

		pipeline := links.NewPipeline(accountID, reg.AccountDir(accountID), sink)
		eb.SubscribeInbound(accountID, func(msg *bus.InboundMessage) {
			pipeline.HandleMessage(ctx, msg)
		})

		if cfg.AutoReply.Enabled {
			replier := autoreply.New(db, sup, cfg.AutoReply.Cooldown)
			eb.SubscribeInbound(accountID, func(msg *bus.InboundMessage) {
				replier.HandleMessage(ctx, msg)
			})
		}

		// Drain the join queue each time the connection opens. One pass
		// at a time per account.
		queue := queueFor(cfg, reg, accountID, sup)
		queues[accountID] = queue
		eb.SubscribeState(accountID, func(evt *bus.StateEvent) {
			if evt.State != string(supervisor.StateOpen) {
				return
			}
			if _, busy := queueBusy.LoadOrStore(accountID, true); busy {
				return
			}
			go func() {
				defer queueBusy.Delete(accountID)
				if err := queue.Process(ctx); err != nil && ctx.Err() == nil {
					fmt.Printf("⚠️ Join queue pass for %s: %v\n", accountID, err)
				}
			}()
		})

		if err := sup.Connect(ctx); err != nil {
			fmt.Printf("⚠️ Account %s connect: %v (will keep retrying)\n", accountID, err)
		} else {
			fmt.Printf("Account %s: connecting\n", accountID)
		}
	}

	// Periodic expiry of stale pending join outcomes.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for accountID, q := range queues {
					if moved, err := q.ExpireOldPending(cfg.Queue.PendingExpiry); err != nil {
						fmt.Printf("⚠️ Pending expiry for %s: %v\n", accountID, err)
					} else if moved > 0 {
						fmt.Printf("Expired %d stale pending joins for %s\n", moved, accountID)
					}
				}
			}
		}
	}()

	fmt.Println("Daemon running. Ctrl-C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")
}
