package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelmill/internal/project"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "progress <project-id>",
		Short: "Show per-language pipeline progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.planeClient()
			if err != nil {
				return err
			}
			p, err := client.Project(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows, err := client.LanguageProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Project  project.Project            `json:"project"`
					Progress []project.LanguageProgress `json:"progress"`
				}{p, rows})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project %s: %s\n", p.ID, p.Status)
			if p.StatusMessage != "" {
				fmt.Fprintf(out, "  %s\n", p.StatusMessage)
			}
			if p.FinalVideoURL != "" {
				fmt.Fprintf(out, "  Final video: %s\n", p.FinalVideoURL)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No language progress recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderTable(progressHeaders(), progressRows(rows), nil, shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func progressHeaders() []string {
	headers := []string{"Lang"}
	for _, stage := range project.Stages {
		headers = append(headers, string(stage))
	}
	return append(headers, "Disabled", "Failure")
}

func progressRows(rows []project.LanguageProgress) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := []string{row.Language}
		for _, stage := range project.Stages {
			line = append(line, yesNo(row.StageDone(stage)))
		}
		failure := ""
		if row.FailedStep != "" {
			failure = fmt.Sprintf("%s: %s", row.FailedStep, row.FailureReason)
		}
		out = append(out, append(line, yesNo(row.Disabled), failure))
	}
	return out
}
