package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelmill/internal/controlplane"
	"reelmill/internal/project"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Create and list projects on the control plane",
	}
	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectListCommand(ctx))
	return projectCmd
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		snap   project.CreationSnapshot
		userID string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project from a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.planeClient()
			if err != nil {
				return err
			}
			token, err := ctx.adminToken()
			if err != nil {
				return err
			}
			created, err := client.CreateProject(cmd.Context(), token, controlplane.CreateProjectRequest{
				UserID:   userID,
				Snapshot: snap,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s) for %s\n",
				created.ID, created.Status, strings.Join(created.Languages, ", "))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&snap.Prompt, "prompt", "", "Topic the narration is written about")
	flags.StringSliceVar(&snap.Languages, "lang", []string{"en"}, "Target language; the first is primary (repeatable)")
	flags.StringVar(&snap.VoiceID, "voice", "", "Voice id for every language")
	flags.StringToStringVar(&snap.LanguageVoices, "lang-voice", nil, "Per-language voice (lang=voice)")
	flags.StringVar(&snap.Template, "template", "", "Script template name")
	flags.StringVar(&snap.StylePrompt, "style", "", "Narration and image style guidance")
	flags.BoolVar(&snap.UseGuidance, "guidance", false, "Pass style guidance to the voice provider")
	flags.BoolVar(&snap.AutoApproveScript, "auto-approve-script", false, "Skip the script validation gate")
	flags.BoolVar(&snap.AutoApproveAudio, "auto-approve-audio", false, "Skip the audio validation gate")
	flags.IntVar(&snap.AudioCandidates, "candidates", 0, "Voiceover candidates per language (0 uses the daemon default)")
	flags.IntVar(&snap.SceneCount, "scenes", 0, "Scene count (0 uses the daemon default)")
	flags.StringVar(&userID, "user", "", "Owning user id")
	flags.BoolVar(&asJSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.planeClient()
			if err != nil {
				return err
			}
			token, err := ctx.adminToken()
			if err != nil {
				return err
			}
			projects, err := client.Projects(cmd.Context(), token)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, projects)
			}
			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintln(out, "No projects")
				return nil
			}
			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				owner := p.CurrentDaemonID
				if owner == "" {
					owner = "-"
				}
				rows = append(rows, []string{
					p.ID,
					string(p.Status),
					strings.Join(p.Languages, ","),
					owner,
					p.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Languages", "Daemon", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				shouldColorize(out),
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
