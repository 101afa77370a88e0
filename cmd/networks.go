package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the supported payment networks",
	RunE:  runNetworks,
}

func init() {
	rootCmd.AddCommand(networksCmd)

	networksCmd.Flags().Bool("json", false, "Output as JSON")
}

func runNetworks(cmd *cobra.Command, args []string) error {
	cfg, _ := loadConfig()

	if mustGetBool(cmd, "json") {
		return printJSON(cfg.Networks.Networks)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tCHAIN ID\tSYMBOL\tEXPLORER")
	for _, n := range cfg.Networks.Networks {
		active := ""
		if n.Name == cfg.Wallet.Network {
			active = "*"
		}
		name := n.DisplayName
		if n.Testnet {
			name += " (testnet)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", active, name, n.ChainID, n.Symbol, n.ExplorerURL)
	}
	return w.Flush()
}
