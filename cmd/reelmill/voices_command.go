package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelmill/internal/voices"
)

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "Inspect the voice catalog",
	}
	voicesCmd.AddCommand(newVoicesListCommand(ctx))
	voicesCmd.AddCommand(newVoicesResolveCommand(ctx))
	return voicesCmd
}

func (c *commandContext) voiceCatalog() (*voices.Catalog, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return voices.Load(cfg.Paths.VoiceCatalog)
}

func newVoicesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.voiceCatalog()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(catalog.Voices))
			for _, v := range catalog.Voices {
				id := v.ID
				if v.ID == catalog.DefaultVoice {
					id += " *"
				}
				langs := strings.Join(v.Languages, ",")
				if langs == "" {
					langs = "any"
				}
				rows = append(rows, []string{id, v.Name, v.Provider, langs})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Provider", "Languages"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				shouldColorize(out),
			))
			return nil
		},
	}
}

func newVoicesResolveCommand(ctx *commandContext) *cobra.Command {
	var voiceID, lang, style string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which voice narrates a language",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := ctx.voiceCatalog()
			if err != nil {
				return err
			}
			res, err := catalog.Resolve(voices.Request{
				Language:     lang,
				VoiceID:      voiceID,
				Style:        style,
				DefaultVoice: cfg.Pipeline.DefaultVoice,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Voice:    %s (%s)\n", res.Voice.ID, res.Voice.Name)
			fmt.Fprintf(out, "Provider: %s (%s)\n", res.Provider.Name, res.Provider.Command)
			fmt.Fprintf(out, "Source:   %s\n", res.Source)
			if style != "" {
				if res.Style == "" {
					fmt.Fprintln(out, "Style:    ignored (provider has no style support)")
				} else {
					fmt.Fprintf(out, "Style:    %s\n", res.Style)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&voiceID, "voice", "", "Voice chosen at project creation")
	cmd.Flags().StringVar(&lang, "lang", "", "Language code")
	cmd.Flags().StringVar(&style, "style", "", "Delivery style guidance")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}
