package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelmill/internal/project"
	"reelmill/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, Password: "pw", DaemonID: "d-1", RetryAttempts: 3},
		WithSleeper(func(time.Duration) {}))
}

func TestClientSendsIdentityHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderPassword) != "pw" || r.Header.Get(HeaderDaemonID) != "d-1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Header.Get(HeaderRequestID) == "" {
			t.Errorf("expected request id header")
		}
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	})
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestClientRequestIDFromContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(HeaderRequestID); got != "req-42" {
			t.Errorf("unexpected request id %q", got)
		}
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	})
	ctx := services.WithRequestID(context.Background(), "req-42")
	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestClaimJobReturnsClaimedFlag(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs/j-1/claim" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(ClaimResponse{Claimed: false})
	})
	claimed, err := client.ClaimJob(context.Background(), "j-1")
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if claimed {
		t.Fatal("expected claimed=false")
	}
}

func TestForbiddenMapsToConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "project owned by d-2"})
	})
	_, err := client.CreateJob(context.Background(), "p-1", project.StageAudio, project.JobPayload{})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "project owned by d-2") {
		t.Fatalf("expected server message in error, got %v", err)
	}
}

func TestForbiddenAuthMapsToConfiguration(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "invalid daemon password", Code: CodeAuth})
	})
	_, err := client.CreateJob(context.Background(), "p-1", project.StageAudio, project.JobPayload{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if errors.Is(err, services.ErrConflict) {
		t.Fatalf("auth rejection classified as conflict: %v", err)
	}
}

func TestServerErrorsAreRetriedThenTransient(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.QueuedJobs(context.Background(), 5)
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRetrySucceedsAfterFailure(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if got := r.URL.Query().Get("limit"); got != "7" {
			t.Errorf("unexpected limit %q", got)
		}
		_ = json.NewEncoder(w).Encode([]project.Project{{ID: "p-1", Status: project.StatusNew, Languages: []string{"en"}}})
	})
	projects, err := client.EligibleProjects(context.Background(), 7)
	if err != nil {
		t.Fatalf("EligibleProjects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p-1" {
		t.Fatalf("unexpected projects %+v", projects)
	}
}

func TestCreateJobIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	if _, err := client.CreateJob(context.Background(), "p-1", project.StageScript, project.JobPayload{}); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestUpdateProjectStatusEncodesTypedExtra(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body project.StatusUpdate
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.From != project.StatusProcessVideoMain || body.Status != project.StatusDone {
			t.Errorf("unexpected transition %s -> %s", body.From, body.Status)
		}
		if !strings.Contains(string(body.Extra), `"failedLanguages":["fr"]`) {
			t.Errorf("unexpected extra %s", body.Extra)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	extra := &project.DoneExtra{FailedLanguages: []string{"fr"}, FinalURLs: map[string]string{"en": "u"}}
	if err := client.UpdateProjectStatus(context.Background(), "p-1", project.StatusProcessVideoMain, project.StatusDone, "done", extra); err != nil {
		t.Fatalf("UpdateProjectStatus: %v", err)
	}
	if err := client.UpdateProjectStatus(context.Background(), "p-1", project.StatusProcessVideoMain, project.StatusDone, "", &project.ErrorExtra{}); err == nil {
		t.Fatal("expected mismatched extra to be rejected before sending")
	}
}

func TestUploadSendsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("path"); got != "p-1/en/audio.mp3" {
			t.Errorf("unexpected path %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		if string(data) != "audio" {
			t.Errorf("unexpected payload %q", data)
		}
		_ = json.NewEncoder(w).Encode(UploadResponse{Path: "p-1/en/audio.mp3", URL: "http://cdn/p-1/en/audio.mp3"})
	})
	local := filepath.Join(t.TempDir(), "audio.mp3")
	if err := os.WriteFile(local, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := client.Upload(context.Background(), "p-1/en/audio.mp3", local, "audio/mpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.URL != "http://cdn/p-1/en/audio.mp3" {
		t.Fatalf("unexpected url %q", resp.URL)
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, err := MintAdminToken("secret", "ops", time.Minute)
	if err != nil {
		t.Fatalf("MintAdminToken: %v", err)
	}
	claims, err := ParseAdminToken("secret", token)
	if err != nil {
		t.Fatalf("ParseAdminToken: %v", err)
	}
	if claims.Subject != "ops" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if _, err := ParseAdminToken("other", token); err == nil {
		t.Fatal("expected signature error")
	}
	if _, err := MintAdminToken("", "ops", time.Minute); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
