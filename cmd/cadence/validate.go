package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aristath/cadence/internal/manifest"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle = lipgloss.NewStyle().Bold(true)
)

func newValidateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check a manifest without running it",
		Long: `Parse a manifest and check it against the configured channels: task
kinds and their fields, unique names, known dependencies and channels,
and the absence of dependency cycles. Prints the registration order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			known := append([]string{cfg.Events.SystemChannel}, cfg.Events.Channels...)
			if err := m.Validate(known...); err != nil {
				return err
			}
			sorted, err := m.Sorted()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("valid"), args[0])
			fmt.Fprintln(out, labelStyle.Render("registration order:"))
			for i, spec := range sorted {
				line := fmt.Sprintf("%3d. %s", i+1, spec.Name)
				detail := spec.Kind
				if spec.Order != "" {
					detail += " @" + spec.Order
				}
				if len(spec.DependsOn) > 0 {
					detail += fmt.Sprintf(" after %v", spec.DependsOn)
				}
				fmt.Fprintf(out, "%s %s\n", line, dimStyle.Render("("+detail+")"))
			}
			return nil
		},
	}
}
