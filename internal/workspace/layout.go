package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelmill/internal/project"
)

// ProjectScope is the language segment used for work that is not tied to a
// single language.
const ProjectScope = "_project"

// Manager hands out per-project layouts under a root directory.
type Manager struct {
	root string
	keep bool
}

// New returns a manager rooted at root. When keep is false, Cleanup removes
// intermediate artifacts once a project finishes.
func New(root string, keep bool) *Manager {
	return &Manager{root: root, keep: keep}
}

// Root returns the workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Project returns the layout for projectID.
func (m *Manager) Project(projectID string) *Project {
	return &Project{root: m.root, id: projectID}
}

// Cleanup removes the intermediate artifacts of projectID, keeping logs.
func (m *Manager) Cleanup(projectID string) error {
	if m.keep {
		return nil
	}
	dir := m.Project(projectID).workspaceRoot()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", dir, err)
	}
	return nil
}

// Project is the directory layout of one project.
type Project struct {
	root string
	id   string
}

// ID returns the project id.
func (p *Project) ID() string {
	return p.id
}

// Dir returns the project root directory.
func (p *Project) Dir() string {
	return filepath.Join(p.root, safeSegment(p.id))
}

func (p *Project) workspaceRoot() string {
	return filepath.Join(p.Dir(), "workspace")
}

// StageDir returns (and creates) the artifact directory for lang and stage.
func (p *Project) StageDir(lang string, stage project.Stage) (string, error) {
	return ensureDir(filepath.Join(p.workspaceRoot(), langSegment(lang), string(stage)))
}

// LogDir returns (and creates) the transcript directory for lang and stage.
func (p *Project) LogDir(lang string, stage project.Stage) (string, error) {
	return ensureDir(filepath.Join(p.Dir(), "logs", langSegment(lang), string(stage)))
}

// JobLogPath returns the log file of one job. The directory is created on
// first write.
func (p *Project) JobLogPath(stage project.Stage, jobID string) string {
	return filepath.Join(p.Dir(), "logs", "jobs", safeSegment(string(stage)+"-"+jobID)+".log")
}

// Path joins name onto the stage directory, creating the directory.
func (p *Project) Path(lang string, stage project.Stage, name string) (string, error) {
	dir, err := p.StageDir(lang, stage)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(name)), nil
}

// Runner returns a command runner whose transcripts land in the log
// directory of lang and stage.
func (p *Project) Runner(lang string, stage project.Stage, opts ...RunnerOption) (*Runner, error) {
	dir, err := p.LogDir(lang, stage)
	if err != nil {
		return nil, err
	}
	return NewRunner(dir, opts...), nil
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

func langSegment(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ProjectScope
	}
	return safeSegment(lang)
}

// safeSegment keeps ids from escaping their parent directory.
func safeSegment(value string) string {
	value = strings.TrimSpace(value)
	value = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(value)
	if value == "" || value == "." {
		return "_"
	}
	return value
}
