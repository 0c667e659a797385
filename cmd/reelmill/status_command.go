package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelmill/internal/daemon"
	"reelmill/internal/deps"
)

const statusRequestTimeout = 5 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the local daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := fetchDaemonStatus(cmd.Context(), cfg.Metrics.Bind)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			for _, line := range renderDaemonStatus(status, shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func fetchDaemonStatus(ctx context.Context, bind string) (daemon.Status, error) {
	var status daemon.Status
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return status, errors.New("metrics.bind is not set; the daemon has no status listener")
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, statusRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+bind+"/status", nil)
	if err != nil {
		return status, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("daemon not reachable at %s: %w", bind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("daemon status: unexpected HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode daemon status: %w", err)
	}
	return status, nil
}

func renderDaemonStatus(status daemon.Status, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d, up %s)", status.PID, status.Uptime), colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "stopped", colorize))
	}
	lines = append(lines, renderStatusLine("Daemon ID", statusInfo, status.DaemonID, colorize))
	lines = append(lines, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))

	wf := status.Workflow
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Workflow", colorize)...)
	if wf.LastCycle.IsZero() {
		lines = append(lines, renderStatusLine("Last poll", statusWarn, "never", colorize))
	} else {
		lines = append(lines, renderStatusLine("Last poll", statusInfo, wf.LastCycle.Local().Format(time.DateTime), colorize))
	}
	if len(wf.Active) == 0 {
		lines = append(lines, renderStatusLine("Active jobs", statusInfo, "none", colorize))
	}
	for _, job := range wf.Active {
		message := fmt.Sprintf("%s %s (%s)", job.Stage, job.ProjectID, time.Since(job.Started).Round(time.Second))
		lines = append(lines, renderStatusLine("Active job", statusOK, message, colorize))
	}
	if len(wf.Outcomes) > 0 {
		keys := make([]string, 0, len(wf.Outcomes))
		for k := range wf.Outcomes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, wf.Outcomes[k]))
		}
		lines = append(lines, renderStatusLine("Outcomes", statusInfo, strings.Join(parts, " "), colorize))
	}
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, wf.LastError, colorize))
	}

	if len(status.Dependencies) > 0 {
		statuses := make([]deps.Status, 0, len(status.Dependencies))
		for _, d := range status.Dependencies {
			statuses = append(statuses, deps.Status{
				Name:      d.Name,
				Command:   d.Command,
				Optional:  d.Optional,
				Available: d.Available,
				Detail:    d.Detail,
			})
		}
		depLines, _ := dependencyLines(statuses, colorize)
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
		lines = append(lines, depLines...)
	}
	return lines
}
