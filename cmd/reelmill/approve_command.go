package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelmill/internal/controlplane"
)

func newApproveCommand(ctx *commandContext) *cobra.Command {
	var voiceovers map[string]string

	cmd := &cobra.Command{
		Use:   "approve <project-id>",
		Short: "Release a project waiting at a validation gate",
		Long: "Approves the scripts or voiceovers of a project waiting for review.\n" +
			"At the audio gate, --voiceover picks a candidate asset per language;\n" +
			"languages without a choice get their first candidate.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.planeClient()
			if err != nil {
				return err
			}
			token, err := ctx.adminToken()
			if err != nil {
				return err
			}
			p, err := client.Approve(cmd.Context(), token, args[0], controlplane.ApproveRequest{Voiceovers: voiceovers})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project %s approved; now %s\n", p.ID, p.Status)
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&voiceovers, "voiceover", nil, "Chosen voiceover asset per language (lang=assetID)")
	return cmd
}
