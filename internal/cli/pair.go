package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/supervisor"
)

var pairPhone string

var pairCmd = &cobra.Command{
	Use:   "pair <account-id>",
	Short: "Pair an account with the platform (QR scan or phone code)",
	Args:  cobra.ExactArgs(1),
	Run:   runPair,
}

func init() {
	pairCmd.Flags().StringVar(&pairPhone, "phone", "", "Request a pairing code for this phone number instead of a QR scan")
}

func runPair(cmd *cobra.Command, args []string) {
	printHeader("📲 waharvest Pair")
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

	if err := sup.Connect(ctx); err != nil {
		fmt.Printf("Connect error: %v\n", err)
		os.Exit(1)
	}

	if sup.State() == supervisor.StateOpen {
		fmt.Println("Already paired and connected.")
		return
	}

	if pairPhone != "" {
		code, err := sup.PairingCode(ctx, pairPhone)
		if err != nil {
			fmt.Printf("Pairing code error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pairing code: %s\n", code)
		fmt.Println("Enter it on the phone under Linked Devices > Link with phone number.")
	} else {
		fmt.Printf("QR token will be written to: %s\n", sup.QRPath())
		fmt.Println("Scan it from the phone under Linked Devices.")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Waiting for pairing to complete (Ctrl-C to abort)...")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			fmt.Println("\nAborted.")
			return
		case <-ticker.C:
			switch sup.State() {
			case supervisor.StateOpen:
				fmt.Println("✓ Paired and connected.")
				return
			case supervisor.StateClosedTerminal:
				fmt.Println("✗ Pairing failed: account reached terminal state.")
				os.Exit(1)
			}
		}
	}
}
