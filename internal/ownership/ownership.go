// Package ownership implements the daemon side of the exclusive claim
// protocol. The control plane arbitrates with an atomic conditional update;
// this package only decides which jobs to attempt and double-checks the
// project afterwards.
package ownership

import (
	"context"
	"fmt"
	"log/slog"

	"reelmill/internal/logging"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// API is the subset of the control-plane client the claimer needs.
type API interface {
	ClaimJob(ctx context.Context, jobID string) (bool, error)
	Project(ctx context.Context, projectID string) (project.Project, error)
}

// Outcome describes the result of a claim attempt.
type Outcome string

const (
	// Claimed means this daemon now runs the job.
	Claimed Outcome = "claimed"
	// Lost means another daemon won the race or the job left the queue.
	Lost Outcome = "lost"
	// Foreign means the project belongs to another daemon.
	Foreign Outcome = "foreign"
)

// Claimer attempts claims on behalf of one daemon identity.
type Claimer struct {
	api      API
	daemonID string
	logger   *slog.Logger
}

// New constructs a claimer.
func New(api API, daemonID string, logger *slog.Logger) *Claimer {
	return &Claimer{api: api, daemonID: daemonID, logger: logging.NewComponentLogger(logger, "ownership")}
}

// DaemonID returns the identity used for claims.
func (c *Claimer) DaemonID() string {
	return c.daemonID
}

// Visible reports whether the daemon may act on p.
func (c *Claimer) Visible(p project.Project) bool {
	return p.OwnedBy(c.daemonID)
}

// FilterVisible drops projects owned by other daemons.
func (c *Claimer) FilterVisible(projects []project.Project) []project.Project {
	out := projects[:0:0]
	for _, p := range projects {
		if c.Visible(p) {
			out = append(out, p)
		}
	}
	return out
}

// Claim attempts to take job. On success it returns the freshly fetched
// project, which is guaranteed to name this daemon as owner.
func (c *Claimer) Claim(ctx context.Context, job project.Job) (project.Project, Outcome, error) {
	if job.DaemonID != "" && job.DaemonID != c.daemonID {
		return project.Project{}, Foreign, nil
	}
	claimed, err := c.api.ClaimJob(ctx, job.ID)
	if err != nil {
		return project.Project{}, Lost, fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	if !claimed {
		c.logger.Debug("claim lost",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldProjectID, job.ProjectID),
			logging.String(logging.FieldEventType, "claim_lost"),
		)
		return project.Project{}, Lost, nil
	}

	p, err := c.api.Project(ctx, job.ProjectID)
	if err != nil {
		return project.Project{}, Claimed, fmt.Errorf("fetch claimed project %s: %w", job.ProjectID, err)
	}
	if p.CurrentDaemonID != c.daemonID {
		logging.WarnWithContext(c.logger, "claimed job but project owned elsewhere", "claim_owner_mismatch",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldProjectID, job.ProjectID),
			logging.String("owner", p.CurrentDaemonID),
			logging.String(logging.FieldImpact, "job abandoned; project left untouched"),
			logging.String(logging.FieldErrorHint, "check the control plane claim transaction"),
		)
		return p, Foreign, services.Wrap(services.ErrConflict, "ownership", "claim",
			fmt.Sprintf("project %s owned by %q", p.ID, p.CurrentDaemonID), nil)
	}
	return p, Claimed, nil
}
