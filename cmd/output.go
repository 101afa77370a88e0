package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/blinkpay/internal/flow"
)

// toastPrinter prints flow notifications to stderr.
func toastPrinter(jsonOutput bool) flow.Notifier {
	return flow.NotifierFunc(func(t flow.Toast) {
		if jsonOutput {
			return
		}
		marker := "✓"
		if t.Variant == flow.VariantDestructive {
			marker = "✗"
		}
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", marker, t.Title, t.Description)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// cliSession is the ledger session of payments sent from the CLI.
const cliSession = "cli"
