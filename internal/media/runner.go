package media

import (
	"context"
	"fmt"
	"os"
	"strings"

	"reelmill/internal/services"
	"reelmill/internal/workspace"
)

// Runner executes a command and records its transcript.
type Runner interface {
	Run(ctx context.Context, label string, cmd workspace.Command) (string, error)
}

// expandArgs substitutes {name} placeholders. Arguments referencing a
// placeholder whose value is empty are dropped together with a preceding
// flag ("--style", "{style}").
func expandArgs(args []string, values map[string]string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if isFlag(arg) && i+1 < len(args) && referencesEmpty(args[i+1], values) {
			i++
			continue
		}
		if referencesEmpty(arg, values) {
			continue
		}
		out = append(out, substitute(arg, values))
	}
	return out
}

func substitute(arg string, values map[string]string) string {
	for key, value := range values {
		arg = strings.ReplaceAll(arg, "{"+key+"}", value)
	}
	return arg
}

func referencesEmpty(arg string, values map[string]string) bool {
	for key, value := range values {
		if value == "" && strings.Contains(arg, "{"+key+"}") {
			return true
		}
	}
	return false
}

func isFlag(arg string) bool {
	return strings.HasPrefix(arg, "-") && !strings.Contains(arg, "{")
}

// requireOutput fails when a tool exited cleanly without producing path.
func requireOutput(tool, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, tool, "output", fmt.Sprintf("expected output %s", path), err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, tool, "output", fmt.Sprintf("output %s is empty", path), nil)
	}
	return nil
}
