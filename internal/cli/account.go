package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waharvest/waharvest/internal/bus"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage companion accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Provision a new account",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		acct, err := reg.Provision()
		if err != nil {
			fmt.Printf("Provision error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Account provisioned: %s\n", acct.ID)
		fmt.Printf("Next: waharvest pair %s\n", acct.ID)
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provisioned accounts",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		accounts := reg.List()
		if len(accounts) == 0 {
			fmt.Println("No accounts. Run 'waharvest account add'.")
			return
		}
		for _, a := range accounts {
			fmt.Printf("%s  created %s\n", a.ID, a.CreatedAt.Format("2006-01-02 15:04"))
		}
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Deregister an account (on-disk state is kept)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		if err := reg.Remove(args[0]); err != nil {
			fmt.Printf("Remove error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Account removed: %s\n", args[0])
	},
}

var accountLogoutCmd = &cobra.Command{
	Use:   "logout <account-id>",
	Short: "Log out an account and archive its credentials",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		requireAccount(reg, args[0])

		sup, err := reg.Get(args[0])
		if err != nil {
			fmt.Printf("Supervisor error: %v\n", err)
			os.Exit(1)
		}
		defer reg.CloseAll()
		if err := sup.Logout(cmd.Context()); err != nil {
			fmt.Printf("Logout error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Account %s logged out. Credentials archived; re-pair to reuse.\n", args[0])
	},
}

func init() {
	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountRemoveCmd, accountLogoutCmd)
}
