package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelmill/internal/controlplane"
	"reelmill/internal/project"
)

func newRollbackCommand(ctx *commandContext) *cobra.Command {
	var target string
	var langs []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "rollback <project-id>",
		Short: "Move a project back to an earlier status",
		Long: "Rolls a project back to an earlier processing status, clearing the\n" +
			"progress flags from that point on. Without --lang every language is reset.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := project.ParseStatus(strings.TrimSpace(target))
			if err != nil {
				return err
			}
			client, err := ctx.planeClient()
			if err != nil {
				return err
			}
			token, err := ctx.adminToken()
			if err != nil {
				return err
			}
			result, err := client.Rollback(cmd.Context(), token, args[0], controlplane.RollbackRequest{
				TargetStatus:     status,
				LanguagesToReset: langs,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project %s rolled back to %s\n", result.Project.ID, result.Project.Status)
			if len(result.Reset) > 0 {
				fmt.Fprintf(out, "Reset languages: %s\n", strings.Join(result.Reset, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "Target status (e.g. ProcessScript, ProcessImagesGeneration)")
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Language to reset (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
