package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aristath/cadence/internal/persistence"
)

type journalOptions struct {
	path       string
	jsonOutput bool
}

func newJournalCmd(flags *globalFlags) *cobra.Command {
	opts := &journalOptions{}

	cmd := &cobra.Command{
		Use:   "journal [session-id]",
		Short: "Browse journaled sessions and lifecycle events",
		Long: `Without arguments, list the sessions recorded in the journal database,
newest first. With a session id, list that session's lifecycle events in
the order they happened.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			path := opts.path
			if path == "" {
				path = cfg.Journal.Path
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("journal database: %w", err)
			}

			store, err := persistence.NewSQLiteStore(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				sessions, err := store.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(out, sessions)
				}
				renderSessions(out, sessions)
				return nil
			}

			records, err := store.ListRecords(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(out, records)
			}
			renderRecords(out, records)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.path, "db", "", "Journal database (default journal.path)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderSessions(out io.Writer, sessions []persistence.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no sessions recorded"))
		return
	}
	t := newTable("SESSION", "STARTED", "DURATION", "EVENTS")
	for _, s := range sessions {
		duration := "open"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
		}
		t.Row(s.ID, s.StartedAt.Local().Format(time.DateTime), duration, strconv.Itoa(s.Events))
	}
	fmt.Fprintln(out, t.Render())
}

func renderRecords(out io.Writer, records []persistence.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no events in session"))
		return
	}
	t := newTable("TICK", "EVENT", "TASK", "TYPE", "ID")
	for _, r := range records {
		t.Row(strconv.FormatUint(r.Tick, 10), r.Kind, r.TaskName, r.TaskType, strconv.FormatUint(uint64(r.TaskID), 10))
	}
	fmt.Fprintln(out, t.Render())
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return labelStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
