package planestore_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelmill/internal/planestore"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

func newStore(t *testing.T) *planestore.Store {
	t.Helper()
	store, err := planestore.Open(context.Background(), filepath.Join(t.TempDir(), "plane.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newProject(t *testing.T, store *planestore.Store, langs ...string) project.Project {
	t.Helper()
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	p, err := store.CreateProject(context.Background(), project.Project{UserID: "user-1"}, project.CreationSnapshot{
		Prompt:    "a short film about tides",
		Languages: langs,
	})
	require.NoError(t, err)
	return p
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plane.db")
	store, err := planestore.Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = planestore.Open(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, planestore.DialectSQLite, store.Dialect())
}

func TestCreateProjectRecordsSnapshotAndHistory(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en", "es")

	assert.Equal(t, project.StatusNew, p.Status)
	assert.Equal(t, []string{"en", "es"}, p.Languages)
	assert.Empty(t, p.CurrentDaemonID)

	snap, err := store.CreationSnapshot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, snap.ProjectID)
	assert.Equal(t, "a short film about tides", snap.Prompt)

	history, err := store.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, project.StatusNew, history[0].Status)
}

func TestCreateProjectRejectsInvalidSnapshot(t *testing.T) {
	store := newStore(t)
	_, err := store.CreateProject(context.Background(), project.Project{}, project.CreationSnapshot{Languages: []string{"en"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestProjectNotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.Project(context.Background(), "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestClaimIsExclusive(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store)
	job, err := store.CreateJob(ctx, "daemon-a", p.ID, project.StageScript, project.JobPayload{})
	require.NoError(t, err)

	daemons := []string{"daemon-a", "daemon-b", "daemon-c", "daemon-d"}
	results := make([]bool, len(daemons))
	var wg sync.WaitGroup
	for i, id := range daemons {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimJob(ctx, job.ID, id)
			assert.NoError(t, err)
			results[i] = claimed
		}()
	}
	wg.Wait()

	winners := 0
	winner := ""
	for i, claimed := range results {
		if claimed {
			winners++
			winner = daemons[i]
		}
	}
	require.Equal(t, 1, winners)

	claimedJob, err := store.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, project.JobRunning, claimedJob.Status)
	assert.Equal(t, winner, claimedJob.DaemonID)

	owned, err := store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, winner, owned.CurrentDaemonID)
}

func TestForeignDaemonCannotQueueSeeOrClaim(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store)

	first, err := store.CreateJob(ctx, "daemon-a", p.ID, project.StageScript, project.JobPayload{})
	require.NoError(t, err)
	claimed, err := store.ClaimJob(ctx, first.ID, "daemon-a")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.UpdateJobStatus(ctx, "daemon-a", first.ID, project.JobDone, ""))

	_, err = store.CreateJob(ctx, "daemon-b", p.ID, project.StageAudio, project.JobPayload{})
	assert.ErrorIs(t, err, services.ErrConflict)

	second, err := store.CreateJob(ctx, "daemon-a", p.ID, project.StageAudio, project.JobPayload{})
	require.NoError(t, err)

	visible, err := store.QueuedJobs(ctx, "daemon-b", 10)
	require.NoError(t, err)
	assert.Empty(t, visible)

	visible, err = store.QueuedJobs(ctx, "daemon-a", 10)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, second.ID, visible[0].ID)

	claimed, err = store.ClaimJob(ctx, second.ID, "daemon-b")
	require.NoError(t, err)
	assert.False(t, claimed)

	untouched, err := store.Job(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, project.JobQueued, untouched.Status)

	eligible, err := store.EligibleProjects(ctx, "daemon-b", 10)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestCreateJobRejectsDuplicatePending(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store)

	_, err := store.CreateJob(ctx, "daemon-a", p.ID, project.StageScript, project.JobPayload{})
	require.NoError(t, err)
	exists, err := store.JobExists(ctx, p.ID, project.StageScript)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.CreateJob(ctx, "daemon-a", p.ID, project.StageScript, project.JobPayload{})
	assert.ErrorIs(t, err, services.ErrConflict)

	_, err = store.CreateJob(ctx, "daemon-a", p.ID, project.Stage("bogus"), project.JobPayload{})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestClaimUnknownJob(t *testing.T) {
	store := newStore(t)
	_, err := store.ClaimJob(context.Background(), "nope", "daemon-a")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestEligibleProjectsSkipsGatesAndTerminal(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	runnable := newProject(t, store)
	gated := newProject(t, store)
	done := newProject(t, store)

	require.NoError(t, store.UpdateProjectStatus(ctx, "", gated.ID, project.StatusUpdate{Status: project.StatusProcessScriptValidate}))
	require.NoError(t, store.UpdateProjectStatus(ctx, "", done.ID, project.StatusUpdate{Status: project.StatusCancelled}))

	eligible, err := store.EligibleProjects(ctx, "daemon-a", 10)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, runnable.ID, eligible[0].ID)
}

func TestUpdateProjectStatusValidatesExtraAndRecordsHistory(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store)

	bad := project.StatusUpdate{Status: project.StatusDone, Extra: json.RawMessage(`{"unknown":1}`)}
	assert.ErrorIs(t, store.UpdateProjectStatus(ctx, "", p.ID, bad), services.ErrValidation)

	extra, err := project.EncodeExtra(project.StatusError, project.ErrorExtra{Reason: "ffmpeg exploded", Kind: "external_tool"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateProjectStatus(ctx, "", p.ID, project.StatusUpdate{Status: project.StatusError, Message: "boom", Extra: extra}))

	got, err := store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StatusError, got.Status)
	assert.Equal(t, "boom", got.StatusMessage)

	history, err := store.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, project.StatusError, history[1].Status)
	assert.JSONEq(t, string(extra), string(history[1].Extra))
}

func TestUpdateProjectStatusRejectsForeignDaemon(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store)
	job, err := store.CreateJob(ctx, "daemon-a", p.ID, project.StageScript, project.JobPayload{})
	require.NoError(t, err)
	_, err = store.ClaimJob(ctx, job.ID, "daemon-a")
	require.NoError(t, err)

	err = store.UpdateProjectStatus(ctx, "daemon-b", p.ID, project.StatusUpdate{Status: project.StatusProcessScript})
	assert.ErrorIs(t, err, services.ErrConflict)
	err = store.UpdateJobStatus(ctx, "daemon-b", job.ID, project.JobDone, "")
	assert.ErrorIs(t, err, services.ErrConflict)
}

func TestScriptsMirrorPrimaryLanguage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en", "fr")

	require.NoError(t, store.SaveScript(ctx, "", p.ID, "en", "The tide comes in."))
	require.NoError(t, store.SaveScript(ctx, "", p.ID, "fr", "La marée monte."))
	assert.ErrorIs(t, store.SaveScript(ctx, "", p.ID, "de", "Die Flut."), services.ErrValidation)

	primary, err := store.Script(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "en", primary.Language)
	assert.Equal(t, "The tide comes in.", primary.Text)

	fr, err := store.Script(ctx, p.ID, "fr")
	require.NoError(t, err)
	assert.Equal(t, "La marée monte.", fr.Text)

	got, err := store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "The tide comes in.", got.Script)

	_, err = store.Script(ctx, newProject(t, store).ID, "en")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestLanguageProgressRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en", "es")

	rows := []project.LanguageProgress{
		{Language: "en", ScriptDone: true},
		{Language: "es", Disabled: true, FailedStep: project.StageScript, FailureReason: "translation failed"},
	}
	require.NoError(t, store.SaveLanguageProgress(ctx, "", p.ID, rows))

	got, err := store.LanguageProgress(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, p.ID, got[0].ProjectID)
	assert.True(t, got[0].ScriptDone)
	assert.True(t, got[1].Disabled)
	assert.Equal(t, project.StageScript, got[1].FailedStep)

	err = store.SaveLanguageProgress(ctx, "", p.ID, []project.LanguageProgress{{Language: "de"}})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestFinalAssetsMirrorPrimaryLanguage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en", "es")

	first, err := store.RegisterAsset(ctx, "", project.Asset{ProjectID: p.ID, Language: "en", Kind: project.AssetVideo, URL: "https://cdn/en-1.mp4", IsFinal: true})
	require.NoError(t, err)
	second, err := store.RegisterAsset(ctx, "", project.Asset{ProjectID: p.ID, Language: "en", Kind: project.AssetVideo, URL: "https://cdn/en-2.mp4", Path: "p/en-2.mp4", IsFinal: true})
	require.NoError(t, err)
	_, err = store.RegisterAsset(ctx, "", project.Asset{ProjectID: p.ID, Language: "es", Kind: project.AssetVideo, URL: "https://cdn/es.mp4", IsFinal: true})
	require.NoError(t, err)

	got, err := store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.FinalVideoID)
	assert.Equal(t, "https://cdn/en-2.mp4", got.FinalVideoURL)
	assert.Equal(t, "p/en-2.mp4", got.FinalVideoPath)

	assets, err := store.Assets(ctx, p.ID)
	require.NoError(t, err)
	finals := map[string]bool{}
	for _, a := range assets {
		finals[a.ID] = a.IsFinal
	}
	assert.False(t, finals[first.ID])
	assert.True(t, finals[second.ID])
}

func TestRollbackResetsProgressAndReleasesOwnership(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en", "es")

	job, err := store.CreateJob(ctx, "daemon-a", p.ID, project.StageScript, project.JobPayload{})
	require.NoError(t, err)
	_, err = store.ClaimJob(ctx, job.ID, "daemon-a")
	require.NoError(t, err)
	require.NoError(t, store.SaveLanguageProgress(ctx, "", p.ID, []project.LanguageProgress{
		{Language: "en", ScriptDone: true, AudioDone: true, TranscriptionDone: true},
		{Language: "es", ScriptDone: true, AudioDone: true, Disabled: true, FailedStep: project.StageTranscription},
	}))
	require.NoError(t, store.UpdateProjectStatus(ctx, "daemon-a", p.ID, project.StatusUpdate{Status: project.StatusProcessMetadata}))
	queued, err := store.CreateJob(ctx, "daemon-a", p.ID, project.StageMetadata, project.JobPayload{})
	require.NoError(t, err)

	result, err := store.Rollback(ctx, p.ID, project.StatusProcessTranscription, nil)
	require.NoError(t, err)
	assert.Equal(t, project.StatusProcessTranscription, result.Project.Status)
	assert.Empty(t, result.Project.CurrentDaemonID)
	assert.ElementsMatch(t, []string{"en", "es"}, result.Reset)

	rows, err := store.LanguageProgress(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.AudioDone, row.Language)
		assert.False(t, row.TranscriptionDone, row.Language)
		assert.False(t, row.Disabled, row.Language)
	}

	superseded, err := store.Job(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, project.JobFailed, superseded.Status)

	_, err = store.Rollback(ctx, p.ID, project.StatusProcessVideoMain, nil)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestApproveAudioGateSelectsVoiceovers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en", "es")

	enFirst, err := store.RegisterAsset(ctx, "", project.Asset{ProjectID: p.ID, Language: "en", Kind: project.AssetAudio, URL: "https://cdn/en-1.mp3"})
	require.NoError(t, err)
	_, err = store.RegisterAsset(ctx, "", project.Asset{ProjectID: p.ID, Language: "es", Kind: project.AssetAudio, URL: "https://cdn/es-1.mp3"})
	require.NoError(t, err)
	esSecond, err := store.RegisterAsset(ctx, "", project.Asset{ProjectID: p.ID, Language: "es", Kind: project.AssetAudio, URL: "https://cdn/es-2.mp3"})
	require.NoError(t, err)
	require.NoError(t, store.SaveLanguageProgress(ctx, "", p.ID, []project.LanguageProgress{
		{Language: "en", ScriptDone: true, AudioDone: true, Artifacts: project.Artifacts{AudioCandidates: []string{"https://cdn/en-1.mp3"}}},
		{Language: "es", ScriptDone: true, AudioDone: true, Artifacts: project.Artifacts{AudioCandidates: []string{"https://cdn/es-1.mp3", "https://cdn/es-2.mp3"}}},
	}))

	_, err = store.Approve(ctx, p.ID, nil)
	assert.ErrorIs(t, err, services.ErrConflict)

	require.NoError(t, store.UpdateProjectStatus(ctx, "", p.ID, project.StatusUpdate{Status: project.StatusProcessAudioValidate}))
	approved, err := store.Approve(ctx, p.ID, map[string]string{"es": esSecond.ID})
	require.NoError(t, err)
	assert.Equal(t, project.StatusProcessTranscription, approved.Status)
	assert.Equal(t, enFirst.ID, approved.VoiceoverID)
	assert.Equal(t, "https://cdn/en-1.mp3", approved.VoiceoverURL)

	rows, err := store.LanguageProgress(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enFirst.ID, rows[0].Artifacts.VoiceoverID)
	assert.Equal(t, esSecond.ID, rows[1].Artifacts.VoiceoverID)
	assert.Equal(t, "https://cdn/es-2.mp3", rows[1].Artifacts.VoiceoverURL)
}

func TestApproveScriptGateAdvances(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store)
	require.NoError(t, store.UpdateProjectStatus(ctx, "", p.ID, project.StatusUpdate{Status: project.StatusProcessScriptValidate}))

	approved, err := store.Approve(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, project.StatusProcessAudio, approved.Status)
}

func claimAs(t *testing.T, store *planestore.Store, daemonID, projectID string, stage project.Stage) project.Job {
	t.Helper()
	ctx := context.Background()
	job, err := store.CreateJob(ctx, daemonID, projectID, stage, project.JobPayload{})
	require.NoError(t, err)
	claimed, err := store.ClaimJob(ctx, job.ID, daemonID)
	require.NoError(t, err)
	require.True(t, claimed)
	return job
}

func TestStaleDaemonWritesAfterRollbackAreRejected(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en", "es")
	running := claimAs(t, store, "daemon-a", p.ID, project.StageVideoMain)
	require.NoError(t, store.UpdateProjectStatus(ctx, "", p.ID, project.StatusUpdate{Status: project.StatusProcessVideoMain}))
	rendered := func(lang string) project.LanguageProgress {
		return project.LanguageProgress{Language: lang, ScriptDone: true, AudioDone: true, TranscriptionDone: true,
			MetadataDone: true, CaptionsDone: true, ImagesDone: true, VideoPartsDone: true}
	}
	require.NoError(t, store.SaveLanguageProgress(ctx, "daemon-a", p.ID, []project.LanguageProgress{rendered("en"), rendered("es")}))

	_, err := store.Rollback(ctx, p.ID, project.StatusProcessVideoPartsGeneration, []string{"es"})
	require.NoError(t, err)

	failed, err := store.Job(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, project.JobFailed, failed.Status, "the running job is superseded by the rollback")

	doneExtra, err := project.EncodeExtra(project.StatusDone, project.DoneExtra{})
	require.NoError(t, err)
	finished := rendered("es")
	finished.FinalVideoDone = true

	writes := []struct {
		name  string
		write func() error
	}{
		{"advance status", func() error {
			return store.UpdateProjectStatus(ctx, "daemon-a", p.ID, project.StatusUpdate{From: project.StatusProcessVideoMain, Status: project.StatusDone, Extra: doneExtra})
		}},
		{"save progress", func() error {
			return store.SaveLanguageProgress(ctx, "daemon-a", p.ID, []project.LanguageProgress{finished})
		}},
		{"save script", func() error {
			return store.SaveScript(ctx, "daemon-a", p.ID, "es", "El río despierta.")
		}},
		{"register asset", func() error {
			_, err := store.RegisterAsset(ctx, "daemon-a", project.Asset{ProjectID: p.ID, Language: "es", Kind: project.AssetVideo, URL: "https://cdn/es.mp4", IsFinal: true})
			return err
		}},
		{"finish job", func() error {
			return store.UpdateJobStatus(ctx, "daemon-a", running.ID, project.JobDone, "")
		}},
	}
	for _, tc := range writes {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.write(), services.ErrConflict)
		})
	}

	// Reclaiming the project does not revive a transition from the old status.
	claimAs(t, store, "daemon-a", p.ID, project.StageVideoParts)
	err = store.UpdateProjectStatus(ctx, "daemon-a", p.ID, project.StatusUpdate{From: project.StatusProcessVideoMain, Status: project.StatusDone, Extra: doneExtra})
	assert.ErrorIs(t, err, services.ErrConflict)

	got, err := store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StatusProcessVideoPartsGeneration, got.Status)
	assert.Empty(t, got.FinalVideoURL)
	rows, err := store.LanguageProgress(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.False(t, rows[1].VideoPartsDone)
	assert.False(t, rows[1].FinalVideoDone)
}

func TestFinishedProjectRejectsDaemonWrites(t *testing.T) {
	for _, terminal := range []project.Status{project.StatusCancelled, project.StatusDone} {
		t.Run(string(terminal), func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			p := newProject(t, store, "en")
			claimAs(t, store, "daemon-a", p.ID, project.StageScript)
			require.NoError(t, store.UpdateProjectStatus(ctx, "daemon-a", p.ID, project.StatusUpdate{From: project.StatusNew, Status: project.StatusProcessScript}))
			require.NoError(t, store.UpdateProjectStatus(ctx, "", p.ID, project.StatusUpdate{Status: terminal}))

			err := store.UpdateProjectStatus(ctx, "daemon-a", p.ID, project.StatusUpdate{Status: project.StatusProcessAudio})
			assert.ErrorIs(t, err, services.ErrConflict)
			err = store.SaveLanguageProgress(ctx, "daemon-a", p.ID, []project.LanguageProgress{{Language: "en", ScriptDone: true}})
			assert.ErrorIs(t, err, services.ErrConflict)

			got, err := store.Project(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, terminal, got.Status)
		})
	}
}

func TestRepeatedStatusWriteIsAccepted(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en")
	claimAs(t, store, "daemon-a", p.ID, project.StageScript)

	update := project.StatusUpdate{From: project.StatusNew, Status: project.StatusProcessScript}
	require.NoError(t, store.UpdateProjectStatus(ctx, "daemon-a", p.ID, update))
	require.NoError(t, store.UpdateProjectStatus(ctx, "daemon-a", p.ID, update))

	history, err := store.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "the repeated write is not recorded twice")
}

func TestUnclaimedProjectRejectsDaemonWrites(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := newProject(t, store, "en")

	assert.ErrorIs(t, store.UpdateProjectStatus(ctx, "daemon-a", p.ID, project.StatusUpdate{Status: project.StatusProcessScript}), services.ErrConflict)
	assert.ErrorIs(t, store.SaveScript(ctx, "daemon-a", p.ID, "en", "The tide."), services.ErrConflict)
	_, err := store.RegisterAsset(ctx, "daemon-a", project.Asset{ProjectID: p.ID, Language: "en", Kind: project.AssetAudio, URL: "https://cdn/en.mp3"})
	assert.ErrorIs(t, err, services.ErrConflict)
}
