package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantz-ai/gantz/internal/db"
	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/ids"
	"github.com/gantz-ai/gantz/pkg/models"
)

func setupServiceRepos(t *testing.T) *repositories.Repositories {
	t.Helper()
	return repositories.New(db.NewTest(t))
}

func testRun(tool string) *models.Run {
	return &models.Run{
		ID:          ids.New(),
		TokenID:     "tok_test",
		ToolName:    tool,
		ToolVersion: "1.0.0",
		State:       "completed",
		DurationMS:  12,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestRunRecorderPersistsQueuedRuns(t *testing.T) {
	repos := setupServiceRepos(t)
	recorder := NewRunRecorder(repos, 8)
	require.NoError(t, recorder.Start())

	recorder.Record(testRun("search"))
	recorder.Record(testRun("search"))
	recorder.Record(testRun("fetch"))

	// Stop drains the queue before returning.
	recorder.Stop()

	runs, err := repos.Runs.List(context.Background(), repositories.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunRecorderStartTwiceFails(t *testing.T) {
	repos := setupServiceRepos(t)
	recorder := NewRunRecorder(repos, 1)
	require.NoError(t, recorder.Start())
	defer recorder.Stop()

	assert.Error(t, recorder.Start())
}

func TestRunRecorderDropsWhenStopped(t *testing.T) {
	repos := setupServiceRepos(t)
	recorder := NewRunRecorder(repos, 1)

	// Never started: Record must not panic or block.
	recorder.Record(testRun("search"))

	runs, err := repos.Runs.List(context.Background(), repositories.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunRecorderStopIsIdempotent(t *testing.T) {
	repos := setupServiceRepos(t)
	recorder := NewRunRecorder(repos, 1)
	require.NoError(t, recorder.Start())

	recorder.Stop()
	recorder.Stop()
}
