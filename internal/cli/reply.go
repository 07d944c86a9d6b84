package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/waharvest/waharvest/internal/store"
)

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Manage auto-reply rules",
}

var (
	replyMatch    string
	replyPriority int
)

var replyAddCmd = &cobra.Command{
	Use:   "add <pattern> <response>",
	Short: "Add a reply rule",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		db := openStore()
		defer db.Close()
		id, err := db.AddRule(store.ReplyRule{
			Match:    replyMatch,
			Pattern:  args[0],
			Response: args[1],
			Priority: replyPriority,
			Enabled:  true,
		})
		if err != nil {
			fmt.Printf("Add rule error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Rule %d added (%s %q).\n", id, replyMatch, args[0])
	},
}

var replyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reply rules",
	Run: func(cmd *cobra.Command, args []string) {
		db := openStore()
		defer db.Close()
		rules, err := db.AllRules()
		if err != nil {
			fmt.Printf("List error: %v\n", err)
			os.Exit(1)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMATCH\tPATTERN\tRESPONSE\tPRIORITY\tENABLED")
		for _, r := range rules {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%v\n",
				r.ID, r.Match, r.Pattern, r.Response, r.Priority, r.Enabled)
		}
		w.Flush()
	},
}

var replyEnableCmd = &cobra.Command{
	Use:   "enable <rule-id>",
	Short: "Enable a rule",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { setRuleEnabled(args[0], true) },
}

var replyDisableCmd = &cobra.Command{
	Use:   "disable <rule-id>",
	Short: "Disable a rule",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { setRuleEnabled(args[0], false) },
}

var replyRemoveCmd = &cobra.Command{
	Use:   "remove <rule-id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseRuleID(args[0])
		db := openStore()
		defer db.Close()
		if err := db.DeleteRule(id); err != nil {
			fmt.Printf("Remove error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Rule %d removed.\n", id)
	},
}

func openStore() *store.Store {
	cfg := loadConfig()
	db, err := store.Open(filepath.Join(cfg.Paths.StateDir, "waharvest.db"))
	if err != nil {
		fmt.Printf("Store error: %v\n", err)
		os.Exit(1)
	}
	return db
}

func parseRuleID(raw string) int64 {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Printf("Invalid rule id %q\n", raw)
		os.Exit(1)
	}
	return id
}

func setRuleEnabled(raw string, enabled bool) {
	id := parseRuleID(raw)
	db := openStore()
	defer db.Close()
	if err := db.SetRuleEnabled(id, enabled); err != nil {
		fmt.Printf("Update error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rule %d enabled=%v.\n", id, enabled)
}

func init() {
	replyAddCmd.Flags().StringVar(&replyMatch, "match", store.MatchContains, "Trigger type: contains, exact, prefix, regex")
	replyAddCmd.Flags().IntVar(&replyPriority, "priority", 0, "Higher priority rules win when several match")
	replyCmd.AddCommand(replyAddCmd, replyListCmd, replyEnableCmd, replyDisableCmd, replyRemoveCmd)
}
