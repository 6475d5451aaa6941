// Command refcheck uploads a paper to the reference verification service
// and shows the results as they stream in.
//
// Usage:
//
//	refcheck [paper.pdf]            Interactive TUI
//	refcheck verify paper.pdf       Headless run, report on stdout
//	refcheck history                Saved reports, newest first
//	refcheck history show <id>      Print one saved report
//	refcheck events                 JSONL diagnostics viewer
//	refcheck version                Build info
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"

	configFile string
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "refcheck [paper.pdf]",
		Short: "Verify the references of a paper",
		Long: `refcheck uploads a PDF to the reference verification service and
renders the verdict for every reference as the service reports it.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTUI,
	}
	rootCmd.Flags().StringP("model", "m", "", "Model to verify with (default from config)")

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.refcheck/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("refcheck %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newEventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
