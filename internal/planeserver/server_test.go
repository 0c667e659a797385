package planeserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelmill/internal/controlplane"
	"reelmill/internal/project"
	"reelmill/internal/services"
	"reelmill/internal/testsupport"
)

func snapshot(langs ...string) project.CreationSnapshot {
	return project.CreationSnapshot{Prompt: "night markets of Taipei", Languages: langs}
}

func TestHealth(t *testing.T) {
	plane := testsupport.NewPlane(t)
	require.NoError(t, plane.Client("daemon-a").Health(context.Background()))
}

func TestDaemonRoutesRequirePassword(t *testing.T) {
	plane := testsupport.NewPlane(t)
	p := plane.CreateProject(t, snapshot("en"))

	bad := controlplane.New(controlplane.Config{
		BaseURL:       plane.URL(),
		Password:      "wrong",
		DaemonID:      "daemon-a",
		RetryAttempts: 1,
	})
	_, err := bad.Project(context.Background(), p.ID)
	assert.ErrorIs(t, err, services.ErrConfiguration)
	assert.NotErrorIs(t, err, services.ErrConflict)
	_, err = bad.CreateJob(context.Background(), p.ID, project.StageScript, project.JobPayload{})
	assert.ErrorIs(t, err, services.ErrConfiguration, "a rejected password is not an ownership conflict")

	cases := []struct {
		name     string
		password string
		daemonID string
	}{
		{"missing password", "", "daemon-a"},
		{"wrong password", "wrong", "daemon-a"},
		{"missing daemon id", testsupport.PlanePassword, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, plane.URL()+"/projects/"+p.ID, nil)
			require.NoError(t, err)
			if tc.password != "" {
				req.Header.Set(controlplane.HeaderPassword, tc.password)
			}
			if tc.daemonID != "" {
				req.Header.Set(controlplane.HeaderDaemonID, tc.daemonID)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			var body controlplane.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, controlplane.CodeAuth, body.Code)
		})
	}
}

func TestForeignDaemonCannotWriteScriptsOrAssets(t *testing.T) {
	plane := testsupport.NewPlane(t)
	ctx := context.Background()
	p := plane.CreateProject(t, snapshot("en"))
	plane.Claim(t, "daemon-a", p.ID, project.StageScript)
	b := plane.Client("daemon-b")

	err := b.SaveScript(ctx, p.ID, "en", "Not my project.")
	assert.ErrorIs(t, err, services.ErrConflict)
	_, err = b.RegisterAsset(ctx, project.Asset{ProjectID: p.ID, Language: "en", Kind: project.AssetVideo, URL: "https://cdn/en.mp4", IsFinal: true})
	assert.ErrorIs(t, err, services.ErrConflict)
	err = b.SaveLanguageProgress(ctx, p.ID, []project.LanguageProgress{{Language: "en", ScriptDone: true}})
	assert.ErrorIs(t, err, services.ErrConflict)

	_, err = plane.Store.Script(ctx, p.ID, "en")
	assert.ErrorIs(t, err, services.ErrNotFound)
	got, err := plane.Store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.FinalVideoURL)
}

func TestClaimProtocolOverHTTP(t *testing.T) {
	plane := testsupport.NewPlane(t)
	ctx := context.Background()
	p := plane.CreateProject(t, snapshot("en", "es"))
	a := plane.Client("daemon-a")
	b := plane.Client("daemon-b")

	eligible, err := a.EligibleProjects(ctx, 10)
	require.NoError(t, err)
	require.Len(t, eligible, 1)

	job, err := a.CreateJob(ctx, p.ID, project.StageScript, project.JobPayload{})
	require.NoError(t, err)
	assert.Equal(t, project.JobQueued, job.Status)

	exists, err := b.JobExists(ctx, p.ID, project.StageScript)
	require.NoError(t, err)
	assert.True(t, exists)

	claimed, err := a.ClaimJob(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = b.ClaimJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	owned, err := b.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "daemon-a", owned.CurrentDaemonID)

	_, err = b.CreateJob(ctx, p.ID, project.StageAudio, project.JobPayload{})
	assert.ErrorIs(t, err, services.ErrConflict)

	err = b.UpdateProjectStatus(ctx, p.ID, project.StatusNew, project.StatusProcessScript, "", nil)
	assert.ErrorIs(t, err, services.ErrConflict)

	require.NoError(t, a.UpdateJobStatus(ctx, job.ID, project.JobRunning, ""))
	require.NoError(t, a.UpdateProjectStatus(ctx, p.ID, project.StatusNew, project.StatusProcessScript, "script generation started", nil))
	require.NoError(t, a.SaveScript(ctx, p.ID, "en", "Steam rises over the stalls."))
	require.NoError(t, a.SaveLanguageProgress(ctx, p.ID, []project.LanguageProgress{{ProjectID: p.ID, Language: "en", ScriptDone: true}}))
	extra := project.ScriptExtra{ScriptLanguages: []string{"en"}, FailedLanguages: []string{"es"}}
	require.NoError(t, a.UpdateProjectStatus(ctx, p.ID, project.StatusProcessScript, project.StatusProcessScriptValidate, "scripts ready", extra))
	require.NoError(t, a.UpdateJobStatus(ctx, job.ID, project.JobDone, ""))

	script, err := a.Script(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Steam rises over the stalls.", script.Text)

	rows, err := a.LanguageProgress(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].ScriptDone)

	history, err := a.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, project.StatusProcessScriptValidate, history[2].Status)

	queued, err := a.QueuedJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestUploadAndServeObject(t *testing.T) {
	plane := testsupport.NewPlane(t)
	ctx := context.Background()
	p := plane.CreateProject(t, snapshot("en"))
	client := plane.Client("daemon-a")

	local := filepath.Join(t.TempDir(), "voice.mp3")
	require.NoError(t, os.WriteFile(local, []byte("ID3 fake audio"), 0o644))

	uploaded, err := client.Upload(ctx, p.ID+"/en/audio/voice.mp3", local, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, p.ID+"/en/audio/voice.mp3", uploaded.Path)
	assert.Contains(t, uploaded.URL, "/storage/objects/")

	resp, err := http.Get(uploaded.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ID3 fake audio", string(body))

	plane.Claim(t, "daemon-a", p.ID, project.StageAudio)
	asset, err := client.RegisterAsset(ctx, project.Asset{ProjectID: p.ID, Language: "en", Kind: project.AssetAudio, URL: uploaded.URL, Path: uploaded.Path, IsFinal: true})
	require.NoError(t, err)
	assert.NotEmpty(t, asset.ID)

	got, err := client.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.ID, got.VoiceoverID)
	assert.Equal(t, uploaded.URL, got.VoiceoverURL)

	_, err = client.Upload(ctx, "../escape.mp3", local, "audio/mpeg")
	require.NoError(t, err, "dot segments are cleaned into the bucket")
	_, statErr := os.Stat(filepath.Join(filepath.Dir(plane.ObjectDir), "escape.mp3"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAdminRoutesRequireToken(t *testing.T) {
	plane := testsupport.NewPlane(t)
	ctx := context.Background()
	p := plane.CreateProject(t, snapshot("en"))
	client := plane.Client("daemon-a")

	_, err := client.Rollback(ctx, "not-a-token", p.ID, controlplane.RollbackRequest{TargetStatus: project.StatusNew})
	assert.ErrorIs(t, err, services.ErrConfiguration)

	forged, err := controlplane.MintAdminToken("other-secret", "mallory", 0)
	require.NoError(t, err)
	_, err = client.Rollback(ctx, forged, p.ID, controlplane.RollbackRequest{TargetStatus: project.StatusNew})
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestAdminCreateRollbackApprove(t *testing.T) {
	plane := testsupport.NewPlane(t)
	ctx := context.Background()
	client := plane.Client("daemon-a")
	token := plane.AdminToken(t)

	p, err := client.CreateProject(ctx, token, controlplane.CreateProjectRequest{UserID: "u1", Snapshot: snapshot("en", "fr")})
	require.NoError(t, err)
	assert.Equal(t, project.StatusNew, p.Status)
	assert.Equal(t, []string{"en", "fr"}, p.Languages)

	plane.Claim(t, "daemon-a", p.ID, project.StageScript)
	require.NoError(t, client.UpdateProjectStatus(ctx, p.ID, project.StatusNew, project.StatusProcessScriptValidate, "", project.ScriptExtra{ScriptLanguages: []string{"en", "fr"}}))
	approved, err := client.Approve(ctx, token, p.ID, controlplane.ApproveRequest{})
	require.NoError(t, err)
	assert.Equal(t, project.StatusProcessAudio, approved.Status)

	_, err = client.Approve(ctx, token, p.ID, controlplane.ApproveRequest{})
	assert.ErrorIs(t, err, services.ErrConflict)

	result, err := client.Rollback(ctx, token, p.ID, controlplane.RollbackRequest{TargetStatus: project.StatusProcessScript, LanguagesToReset: []string{"fr"}})
	require.NoError(t, err)
	assert.Equal(t, project.StatusProcessScript, result.Project.Status)
	assert.Equal(t, []string{"fr"}, result.Reset)

	_, err = client.Rollback(ctx, token, p.ID, controlplane.RollbackRequest{TargetStatus: "Bogus"})
	assert.ErrorIs(t, err, services.ErrValidation)
}
