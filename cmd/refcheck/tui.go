package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/abelbrown/refcheck/internal/logging"
	"github.com/abelbrown/refcheck/internal/session"
	"github.com/abelbrown/refcheck/internal/ui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	d, err := openDeps("tui")
	if err != nil {
		return err
	}
	defer d.Close()

	modelFlag, _ := cmd.Flags().GetString("model")
	model, err := d.pickModel(modelFlag)
	if err != nil {
		return err
	}

	var initial string
	if len(args) == 1 {
		initial = args[0]
	}

	app := ui.NewApp(ui.AppConfig{
		Client: d.client,
		Diag:   d.diag,
		Ring:   d.ring,
		SaveRun: func(s *session.Session) tea.Cmd {
			return func() tea.Msg {
				_, err := s.Save(d.store)
				return ui.RunSaved{RunID: s.ID, Err: err}
			}
		},
		Models:       d.cfg.Models.Available,
		DefaultModel: model,
		InitialPath:  initial,
	})

	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		logging.Error("tui exited", "err", err)
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
