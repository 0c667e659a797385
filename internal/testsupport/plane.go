package testsupport

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"reelmill/internal/controlplane"
	"reelmill/internal/planeserver"
	"reelmill/internal/planestore"
	"reelmill/internal/project"
)

const (
	// PlanePassword is the daemon secret accepted by NewPlane servers.
	PlanePassword = "test-password"
	// PlaneAdminSecret signs operator tokens for NewPlane servers.
	PlaneAdminSecret = "test-admin-secret"
)

// Plane is an in-process control plane backed by a temporary SQLite file.
type Plane struct {
	Store     *planestore.Store
	Server    *httptest.Server
	ObjectDir string
}

// NewPlane starts a control plane on an httptest server and stops it when
// the test ends.
func NewPlane(t testing.TB) *Plane {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store, err := planestore.Open(context.Background(), filepath.Join(dir, "plane.db"))
	if err != nil {
		t.Fatalf("open plane store: %v", err)
	}
	objects := filepath.Join(dir, "objects")
	api := planeserver.New(store, planeserver.Config{
		Password:    PlanePassword,
		AdminSecret: PlaneAdminSecret,
		ObjectDir:   objects,
		Version:     "test",
	}, nil)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = store.Close()
	})
	return &Plane{Store: store, Server: server, ObjectDir: objects}
}

// URL returns the base URL of the plane.
func (p *Plane) URL() string {
	return p.Server.URL
}

// Client returns a control-plane client identified as daemonID.
func (p *Plane) Client(daemonID string) *controlplane.Client {
	return controlplane.New(controlplane.Config{
		BaseURL:       p.Server.URL,
		Password:      PlanePassword,
		DaemonID:      daemonID,
		RetryAttempts: 1,
	}, controlplane.WithHTTPClient(p.Server.Client()))
}

// AdminToken mints a short-lived operator token.
func (p *Plane) AdminToken(t testing.TB) string {
	t.Helper()
	token, err := controlplane.MintAdminToken(PlaneAdminSecret, "test-operator", time.Minute)
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}
	return token
}

// CreateProject inserts a project for snap directly into the store.
func (p *Plane) CreateProject(t testing.TB, snap project.CreationSnapshot) project.Project {
	t.Helper()
	created, err := p.Store.CreateProject(context.Background(), project.Project{UserID: "test-user"}, snap)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return created
}

// Claim queues a job of stage for the project and claims it as daemonID,
// making daemonID the project owner.
func (p *Plane) Claim(t testing.TB, daemonID, projectID string, stage project.Stage) project.Job {
	t.Helper()
	ctx := context.Background()
	job, err := p.Store.CreateJob(ctx, daemonID, projectID, stage, project.JobPayload{})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	claimed, err := p.Store.ClaimJob(ctx, job.ID, daemonID)
	if err != nil || !claimed {
		t.Fatalf("claim job: claimed=%v err=%v", claimed, err)
	}
	return job
}
