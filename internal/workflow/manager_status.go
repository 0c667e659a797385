package workflow

import (
	"sort"
	"time"

	"reelmill/internal/project"
)

// ActiveJob describes a job currently executing.
type ActiveJob struct {
	JobID     string        `json:"jobId"`
	ProjectID string        `json:"projectId"`
	Stage     project.Stage `json:"stage"`
	Started   time.Time     `json:"started"`
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool           `json:"running"`
	DaemonID  string         `json:"daemonId"`
	Active    []ActiveJob    `json:"active"`
	Outcomes  map[string]int `json:"outcomes"`
	LastError string         `json:"lastError,omitempty"`
	LastJob   *project.Job   `json:"lastJob,omitempty"`
	LastCycle time.Time      `json:"lastCycle"`
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := StatusSummary{
		Running:   m.running,
		DaemonID:  m.claimer.DaemonID(),
		Active:    make([]ActiveJob, 0, len(m.active)),
		Outcomes:  make(map[string]int, len(m.outcomes)),
		LastCycle: m.lastCycle,
	}
	for _, entry := range m.active {
		summary.Active = append(summary.Active, ActiveJob{
			JobID:     entry.job.ID,
			ProjectID: entry.job.ProjectID,
			Stage:     entry.stage,
			Started:   entry.started,
		})
	}
	sort.Slice(summary.Active, func(i, j int) bool {
		return summary.Active[i].Started.Before(summary.Active[j].Started)
	})
	for k, v := range m.outcomes {
		summary.Outcomes[k] = v
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		copy := *m.lastJob
		summary.LastJob = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job project.Job) {
	m.mu.Lock()
	m.lastJob = &job
	m.mu.Unlock()
}

func (m *Manager) markCycle() {
	m.mu.Lock()
	m.lastCycle = time.Now()
	m.mu.Unlock()
}

func (m *Manager) recordOutcome(outcome string) {
	m.mu.Lock()
	m.outcomes[outcome]++
	m.mu.Unlock()
}
