package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/links"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Inspect an account's harvested link corpus",
}

var linksStatsCmd = &cobra.Command{
	Use:   "stats <account-id>",
	Short: "Show per-category link counts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		requireAccount(reg, args[0])

		pipeline := links.NewPipeline(args[0], reg.AccountDir(args[0]), nil)
		counts, total := pipeline.Stats()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tLINKS")
		for _, cat := range links.Categories() {
			if counts[cat] == 0 {
				continue
			}
			fmt.Fprintf(w, "%s\t%d\n", cat, counts[cat])
		}
		fmt.Fprintf(w, "total\t%d\n", total)
		w.Flush()
	},
}

var linksListCmd = &cobra.Command{
	Use:   "list <account-id> <category>",
	Short: "List harvested links in one category",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reg := newRegistry(cfg, bus.NewEventBus())
		requireAccount(reg, args[0])

		cat := links.Category(args[1])
		known := false
		for _, c := range links.Categories() {
			if c == cat {
				known = true
				break
			}
		}
		if !known {
			fmt.Printf("Unknown category %q. Known: %v\n", args[1], links.Categories())
			os.Exit(1)
		}

		pipeline := links.NewPipeline(args[0], reg.AccountDir(args[0]), nil)
		for _, url := range pipeline.Links(cat) {
			fmt.Println(url)
		}
	},
}

func init() {
	linksCmd.AddCommand(linksStatsCmd, linksListCmd)
}
