package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/abelbrown/refcheck/internal/store"
	"github.com/abelbrown/refcheck/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List saved reports, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to list")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved report (full ID or unique prefix)",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	})
	return historyCmd
}

func openHistory() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.DBPath()); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no history at %s yet: run a verification first", cfg.DBPath())
	}
	return store.Open(cfg.DBPath())
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := st.ListRuns(limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		if runs == nil {
			runs = []store.RunSummary{}
		}
		printJSON(runs)
		return nil
	}
	if len(runs) == 0 {
		fmt.Println("No saved reports.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tFILE\tMODEL\tRESULT\tREFS\tVERIFIED\tSIZE")
	for _, r := range runs {
		verified := "-"
		if r.Summary != nil {
			verified = fmt.Sprintf("%d/%d", r.Summary.VerifiedCount, r.Summary.TotalReferences)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortRunID(r.ID),
			humanize.Time(r.StartedAt),
			r.FileName,
			r.Model,
			r.Phase,
			r.References,
			verified,
			humanize.Bytes(uint64(r.Bytes)),
		)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(args[0])
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAmbiguous) {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(run)
		return nil
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("File:     %s\n", run.FileName)
	fmt.Printf("Model:    %s\n", run.Model)
	fmt.Printf("Started:  %s (%s)\n", run.StartedAt.Local().Format(time.RFC1123), humanize.Time(run.StartedAt))
	fmt.Printf("Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Printf("Result:   %s, %d events, %s", run.Snapshot.Phase, run.Snapshot.Events, humanize.Bytes(uint64(run.Bytes)))
	if run.Dropped > 0 {
		fmt.Printf(", %d malformed frames dropped", run.Dropped)
	}
	fmt.Println()
	fmt.Println(strings.Repeat("─", reportWidth))
	fmt.Println(ui.RenderReport(run.Snapshot, reportWidth))
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
