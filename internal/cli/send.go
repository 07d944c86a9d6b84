package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/supervisor"
)

var sendTo []string

var sendCmd = &cobra.Command{
	Use:   "send <account-id> <text>",
	Short: "Send a text to one or more chats, throttled between sends",
	Args:  cobra.ExactArgs(2),
	Run:   runSend,
}

func init() {
	sendCmd.Flags().StringSliceVar(&sendTo, "to", nil, "Recipient chat JIDs (repeat or comma-separate)")
	sendCmd.MarkFlagRequired("to")
}

func runSend(cmd *cobra.Command, args []string) {
	printHeader("📤 waharvest Send")
	accountID, text := args[0], args[1]

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

	if err := sup.Connect(ctx); err != nil {
		fmt.Printf("Connect error: %v\n", err)
		os.Exit(1)
	}
	deadline := time.Now().Add(time.Minute)
	for sup.State() != supervisor.StateOpen {
		if time.Now().After(deadline) {
			fmt.Println("Connection did not open; pair the account first.")
			os.Exit(1)
		}
		time.Sleep(500 * time.Millisecond)
	}

	sent, failed := sup.BulkSend(ctx, sendTo, text)
	fmt.Printf("Sent %d/%d.\n", sent, len(sendTo))
	for chat, err := range failed {
		fmt.Printf("  ✗ %s: %v\n", chat, err)
	}
	if len(failed) > 0 {
		os.Exit(1)
	}
}
