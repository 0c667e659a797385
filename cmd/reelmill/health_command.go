package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reelmill/internal/controlplane"
	"reelmill/internal/preflight"
	"reelmill/internal/voices"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run preflight checks against the local setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			plane := controlplane.New(controlplane.ConfigFrom(cfg))
			results := append(preflight.RunAll(cmd.Context(), cfg), preflight.CheckControlPlane(cmd.Context(), plane))

			var providers []string
			catalog, catalogErr := voices.Load(cfg.Paths.VoiceCatalog)
			if catalogErr != nil {
				results = append(results, preflight.Result{Name: "Voice catalog", Detail: catalogErr.Error()})
			} else {
				results = append(results, preflight.Result{Name: "Voice catalog", Passed: true, Detail: fmt.Sprintf("%d voices", len(catalog.Voices))})
				for _, p := range catalog.Providers {
					providers = append(providers, p.Command)
				}
			}

			checkOut, checksFailed := checkLines(results, colorize)
			depOut, depsFailed := dependencyLines(preflight.CheckSystemDeps(cfg, providers), colorize)

			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range checkOut {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range depOut {
				fmt.Fprintln(out, line)
			}

			if checksFailed || depsFailed {
				return errors.New("health checks failed")
			}
			return nil
		},
	}
}
