package workflow

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelmill/internal/config"
	"reelmill/internal/logging"
	"reelmill/internal/notifications"
	"reelmill/internal/phases"
	"reelmill/internal/project"
	"reelmill/internal/services"
	"reelmill/internal/testsupport"
)

type statusWrite struct {
	ProjectID string
	Status    project.Status
	Message   string
	Extra     project.Extra
}

// fakePlane is an in-memory control plane that honours ownership.
type fakePlane struct {
	mu        sync.Mutex
	daemonID  string
	projects  map[string]*project.Project
	snapshots map[string]project.CreationSnapshot
	jobs      []*project.Job
	progress  map[string]map[string]project.LanguageProgress
	writes    []statusWrite
	healthErr error
	loseClaim bool
	nextJob   int
}

func newFakePlane(daemonID string) *fakePlane {
	return &fakePlane{
		daemonID:  daemonID,
		projects:  make(map[string]*project.Project),
		snapshots: make(map[string]project.CreationSnapshot),
		progress:  make(map[string]map[string]project.LanguageProgress),
	}
}

func (f *fakePlane) addProject(id string, status project.Status, owner string, langs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[id] = &project.Project{ID: id, Status: status, Languages: langs, CurrentDaemonID: owner}
	f.snapshots[id] = project.CreationSnapshot{ProjectID: id, Prompt: "rivers at dawn", Languages: langs}
}

// rollback moves the project to status and releases its owner, as an
// operator rollback does.
func (f *fakePlane) rollback(id string, status project.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[id]
	p.Status = status
	p.CurrentDaemonID = ""
}

func (f *fakePlane) queueJob(projectID string, stage project.Stage) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createLocked(projectID, stage).ID
}

func (f *fakePlane) createLocked(projectID string, stage project.Stage) *project.Job {
	f.nextJob++
	job := &project.Job{ID: fmt.Sprintf("job-%d", f.nextJob), ProjectID: projectID, Type: stage, Status: project.JobQueued}
	f.jobs = append(f.jobs, job)
	return job
}

func (f *fakePlane) project(id string) project.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.projects[id]
}

func (f *fakePlane) jobsFor(projectID string) []project.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []project.Job
	for _, j := range f.jobs {
		if j.ProjectID == projectID {
			out = append(out, *j)
		}
	}
	return out
}

func (f *fakePlane) statuses(projectID string) []project.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []project.Status
	for _, w := range f.writes {
		if w.ProjectID == projectID {
			out = append(out, w.Status)
		}
	}
	return out
}

func (f *fakePlane) lastWrite(projectID string) statusWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].ProjectID == projectID {
			return f.writes[i]
		}
	}
	return statusWrite{}
}

func (f *fakePlane) Health(context.Context) error { return f.healthErr }

func (f *fakePlane) QueuedJobs(_ context.Context, limit int) ([]project.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []project.Job
	for _, j := range f.jobs {
		if j.Status != project.JobQueued {
			continue
		}
		if p := f.projects[j.ProjectID]; p != nil && !p.OwnedBy(f.daemonID) {
			continue
		}
		out = append(out, *j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePlane) CreateJob(_ context.Context, projectID string, stage project.Stage, _ project.JobPayload) (project.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.projects[projectID]; p != nil && !p.OwnedBy(f.daemonID) {
		return project.Job{}, services.Wrap(services.ErrConflict, "control_plane", "create job", "", nil)
	}
	return *f.createLocked(projectID, stage), nil
}

func (f *fakePlane) JobExists(_ context.Context, projectID string, stage project.Stage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ProjectID == projectID && j.Type == stage && (j.Status == project.JobQueued || j.Status == project.JobRunning) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePlane) ClaimJob(_ context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loseClaim {
		return false, nil
	}
	for _, j := range f.jobs {
		if j.ID != jobID || j.Status != project.JobQueued {
			continue
		}
		p := f.projects[j.ProjectID]
		if !p.OwnedBy(f.daemonID) {
			return false, nil
		}
		j.Status = project.JobRunning
		j.DaemonID = f.daemonID
		p.CurrentDaemonID = f.daemonID
		return true, nil
	}
	return false, nil
}

func (f *fakePlane) UpdateJobStatus(_ context.Context, jobID string, status project.JobStatus, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == jobID {
			j.Status = status
			j.Message = message
			return nil
		}
	}
	return services.Wrap(services.ErrNotFound, "control_plane", "job status", jobID, nil)
}

func (f *fakePlane) EligibleProjects(_ context.Context, limit int) ([]project.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []project.Project
	for _, p := range f.projects {
		if _, ok := project.StageFor(p.Status); ok {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b project.Project) int {
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePlane) Project(_ context.Context, id string) (project.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return project.Project{}, services.Wrap(services.ErrNotFound, "control_plane", "get project", id, nil)
	}
	return *p, nil
}

func (f *fakePlane) CreationSnapshot(_ context.Context, id string) (project.CreationSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[id], nil
}

func (f *fakePlane) UpdateProjectStatus(_ context.Context, id string, from, status project.Status, message string, extra project.Extra) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[id]
	if from != "" && p.Status != from && p.Status != status {
		return services.Wrap(services.ErrConflict, "control_plane", "project status", "project moved", nil)
	}
	p.Status = status
	p.StatusMessage = message
	f.writes = append(f.writes, statusWrite{ProjectID: id, Status: status, Message: message, Extra: extra})
	return nil
}

func (f *fakePlane) LanguageProgress(_ context.Context, id string) ([]project.LanguageProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []project.LanguageProgress
	for _, row := range f.progress[id] {
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakePlane) SaveLanguageProgress(_ context.Context, id string, rows []project.LanguageProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progress[id] == nil {
		f.progress[id] = make(map[string]project.LanguageProgress)
	}
	for _, row := range rows {
		f.progress[id][row.Language] = row
	}
	return nil
}

func (f *fakePlane) Script(context.Context, string, string) (project.Script, error) {
	return project.Script{}, services.Wrap(services.ErrNotFound, "control_plane", "get script", "", nil)
}

func (f *fakePlane) SaveScript(context.Context, string, string, string) error { return nil }

func (f *fakePlane) RegisterAsset(_ context.Context, asset project.Asset) (project.Asset, error) {
	return asset, nil
}

func (f *fakePlane) Assets(context.Context, string) ([]project.Asset, error) { return nil, nil }

// stubExecutor returns whatever fn decides.
type stubExecutor struct {
	stage project.Stage
	calls atomic.Int32
	fn    func(ctx context.Context, run *phases.Run) (phases.Result, error)
}

func (s *stubExecutor) Stage() project.Stage { return s.stage }

func (s *stubExecutor) Execute(ctx context.Context, run *phases.Run) (phases.Result, error) {
	s.calls.Add(1)
	return s.fn(ctx, run)
}

func advanceTo(next project.Status, extra project.Extra) func(context.Context, *phases.Run) (phases.Result, error) {
	return func(context.Context, *phases.Run) (phases.Result, error) {
		return phases.Result{Next: next, Message: "ok", Extra: extra}, nil
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingNotifier) last() (notifications.Event, notifications.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return "", nil
	}
	return r.events[len(r.events)-1], r.payloads[len(r.payloads)-1]
}

type harness struct {
	cfg      *config.Config
	plane    *fakePlane
	notifier *recordingNotifier
	manager  *Manager
}

func newHarness(t *testing.T, executors ...*stubExecutor) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	plane := newFakePlane(cfg.Daemon.ID)
	notifier := &recordingNotifier{}
	registry := make(phases.Registry, len(executors))
	for _, e := range executors {
		registry[e.stage] = e
	}
	manager := NewManager(cfg, plane, registry, logging.NewNop(), WithNotifier(notifier))
	return &harness{cfg: cfg, plane: plane, notifier: notifier, manager: manager}
}

func (h *harness) runOnce(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.manager.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
}
