package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/refcheck/internal/logging"
	"github.com/abelbrown/refcheck/internal/session"
	"github.com/abelbrown/refcheck/internal/store"
	"github.com/abelbrown/refcheck/internal/transport"
	"github.com/abelbrown/refcheck/internal/ui"
	"github.com/abelbrown/refcheck/internal/viewmodel"
)

// reportWidth is the wrap width of text reports.
const reportWidth = 100

var errInterrupted = errors.New("interrupted")

// verifyResult is the --json output of verify.
type verifyResult struct {
	store.Run
	Saved bool `json:"saved"`
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <paper.pdf>",
		Short: "Verify a paper without the TUI",
		Long: `Upload a PDF, print progress to stderr while the service streams its
results, then print the final report to stdout (text, or JSON with --json).
The report is saved to history unless --no-save is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	}
	cmd.Flags().StringP("model", "m", "", "Model to verify with (default from config)")
	cmd.Flags().BoolP("quiet", "q", false, "Do not print progress")
	cmd.Flags().Bool("no-save", false, "Do not save the report to history")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return err
	}

	d, err := openDeps("verify")
	if err != nil {
		return err
	}
	defer d.Close()

	modelFlag, _ := cmd.Flags().GetString("model")
	model, err := d.pickModel(modelFlag)
	if err != nil {
		return err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	noSave, _ := cmd.Flags().GetBool("no-save")

	progress := io.Writer(os.Stderr)
	if quiet {
		progress = io.Discard
	}

	up := transport.Upload{Path: path, Model: model}
	s := session.New(up, d.diag)
	fmt.Fprintf(progress, "Uploading %s to %s (model %s)\n", s.FileName, d.client.Endpoint(), model)

	runErr := verify(cmd.Context(), d.client, s, up, progressPrinter(progress))
	if runErr != nil && !errors.Is(runErr, errInterrupted) {
		logging.Warn("verify ended with error", "run", s.ID, "err", runErr)
	}

	saved := false
	if !noSave {
		if saved, err = s.Save(d.store); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	snap := s.Snapshot()
	if jsonOutput {
		printJSON(verifyResult{Run: s.Record(), Saved: saved})
	} else {
		fmt.Println(ui.RenderReport(snap, reportWidth))
		fmt.Fprintf(progress, "\n%s in %s, %s received", snap.Phase, s.Elapsed().Round(time.Millisecond), humanize.Bytes(uint64(s.BytesReceived())))
		if saved {
			fmt.Fprintf(progress, ", saved as %s", s.ID)
		}
		fmt.Fprintln(progress)
	}

	switch snap.Phase {
	case viewmodel.Failed:
		return fmt.Errorf("verification failed: %s", snap.ErrorMessage)
	case viewmodel.Cancelled:
		return errInterrupted
	}
	return nil
}

// verify runs one upload to completion. The drive loop and a signal
// watcher share an errgroup: an interrupt cancels the drive, which
// cancels the session and closes the stream.
func verify(ctx context.Context, client *transport.Client, s *session.Session, up transport.Upload, onUpdate func(*session.Session)) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		stream, err := s.Open(gctx, client, up)
		if err != nil {
			if gctx.Err() != nil {
				s.Cancel()
				return gctx.Err()
			}
			s.Close(err)
			return err
		}
		return session.Drive(gctx, s, stream, onUpdate)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logging.Info("verify interrupted", "run", s.ID, "signal", sig)
			return errInterrupted
		case <-gctx.Done():
			return nil
		}
	})

	return g.Wait()
}

// progressPrinter echoes new log lines and reference verdicts as they
// arrive.
func progressPrinter(w io.Writer) func(*session.Session) {
	var logs, refs int
	return func(s *session.Session) {
		snap := s.Snapshot()
		for _, line := range snap.Log[logs:] {
			fmt.Fprintln(w, "  "+line)
		}
		logs = len(snap.Log)
		for i, r := range snap.References[refs:] {
			fmt.Fprintf(w, "  [%d] %s\n", refs+i+1, ui.StatusLabel(r))
		}
		refs = len(snap.References)
	}
}
