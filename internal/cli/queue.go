package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/joinqueue"
	"github.com/waharvest/waharvest/internal/supervisor"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage an account's group-join queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <account-id> <link>...",
	Short: "Enqueue invite links",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		requireAccount(reg, args[0])

		q := queueFor(cfg, reg, args[0], nil)
		added, err := q.Add(args[1:]...)
		if err != nil {
			fmt.Printf("Enqueue error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Queued %d link(s), %d pending total.\n", added, len(q.Pending()))
	},
}

var queueProcessCmd = &cobra.Command{
	Use:   "process <account-id>",
	Short: "Connect and drain the queue in one throttled pass",
	Args:  cobra.ExactArgs(1),
	Run:   runQueueProcess,
}

var queueReportCmd = &cobra.Command{
	Use:   "report <account-id>",
	Short: "Show join outcomes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		requireAccount(reg, args[0])

		q := queueFor(cfg, reg, args[0], nil)
		rep := q.Report()
		fmt.Printf("Queued:  %d\n", len(q.Pending()))
		printEntries("Joined", rep.Joined)
		printEntries("Pending", rep.Pending)
		printEntries("Failed", rep.Failed)
		printEntries("Expired", rep.Expired)
	},
}

var queueExpireCmd = &cobra.Command{
	Use:   "expire <account-id>",
	Short: "Move stale pending outcomes to expired",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		requireAccount(reg, args[0])

		q := queueFor(cfg, reg, args[0], nil)
		moved, err := q.ExpireOldPending(cfg.Queue.PendingExpiry)
		if err != nil {
			fmt.Printf("Expire error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Expired %d pending entr(ies).\n", moved)
	},
}

func printEntries(label string, entries []joinqueue.Entry) {
	fmt.Printf("%s: %d\n", label, len(entries))
	for _, e := range entries {
		detail := e.JID
		if detail == "" {
			detail = e.Reason
		}
		fmt.Printf("  %s  %s  %s\n", e.Time.Format(time.RFC3339), e.Link, detail)
	}
}

func runQueueProcess(cmd *cobra.Command, args []string) {
	printHeader("🚪 waharvest Queue")
	accountID := args[0]

	cfg := loadConfig()
	eb := bus.NewEventBus()
	reg := newRegistry(cfg, eb)
	requireAccount(reg, accountID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eb.Dispatch(ctx)

	sup, err := reg.Get(accountID)
	if err != nil {
		fmt.Printf("Supervisor error: %v\n", err)
		os.Exit(1)
	}
	defer reg.CloseAll()

	q := queueFor(cfg, reg, accountID, sup)
	if len(q.Pending()) == 0 {
		fmt.Println("Queue is empty.")
		return
	}

	if err := sup.Connect(ctx); err != nil {
		fmt.Printf("Connect error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Waiting for connection...")
	deadline := time.Now().Add(2 * time.Minute)
	for sup.State() != supervisor.StateOpen {
		if time.Now().After(deadline) {
			fmt.Println("Connection did not open in time; pair the account first.")
			os.Exit(1)
		}
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Printf("Processing %d link(s), %s between joins...\n", len(q.Pending()), cfg.Queue.JoinDelay)
	if err := q.Process(ctx); err != nil {
		fmt.Printf("Queue pass error: %v\n", err)
		os.Exit(1)
	}
	rep := q.Report()
	fmt.Printf("Done. joined=%d pending=%d failed=%d\n",
		len(rep.Joined), len(rep.Pending), len(rep.Failed))
}

func init() {
	queueCmd.AddCommand(queueAddCmd, queueProcessCmd, queueReportCmd, queueExpireCmd)
}
