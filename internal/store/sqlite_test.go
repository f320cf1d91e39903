package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/cache"
	"github.com/sells-group/prospector/internal/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "prospector.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	goal := model.Goal{Query: "clay suppliers in missoula", EntityType: "supplier"}
	run, err := s.CreateRun(ctx, goal)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusFetching))

	result := &model.RunResult{
		Entities: []model.VerifiedEntity{{
			Subject:    "riverbend clay supply",
			State:      model.StateVerified,
			Confidence: 0.8,
		}},
		Candidates:    12,
		FetchesIssued: 9,
		Elapsed:       42 * time.Second,
	}
	require.NoError(t, s.UpdateRunResult(ctx, run.ID, result))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.Query, got.Goal.Query)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 12, got.Result.Candidates)
	require.Len(t, got.Result.Entities, 1)
	assert.Equal(t, model.StateVerified, got.Result.Entities[0].State)
}

func TestGetRun_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUpdateRun_NotFound(t *testing.T) {
	s := testStore(t)
	err := s.UpdateRunStatus(context.Background(), "no-such-run", model.RunStatusFailed)
	require.Error(t, err)
}

func TestListRuns_FilterByStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, model.Goal{Query: "a"})
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, model.Goal{Query: "b"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, a.ID, model.RunStatusFailed))

	failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, a.ID, failed[0].ID)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEntities_PutAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.Goal{Query: "suppliers"})
	require.NoError(t, err)

	entities := []model.VerifiedEntity{
		{Subject: "riverbend clay supply", State: model.StateVerified, Confidence: 0.85,
			Claims: map[string]model.ClaimValue{
				model.FieldName: {Value: "Riverbend Clay Supply", Sources: []string{"riverbendclay.com"}},
			}},
		{Subject: "granite peak tooling", State: model.StateCorroborating, Confidence: 0.55},
		{Subject: "shady imports", State: model.StateDisputed, Confidence: 0.2},
	}
	for _, e := range entities {
		require.NoError(t, s.PutEntity(ctx, run.ID, e))
	}

	confident, err := s.QueryEntities(ctx, EntityFilter{MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, confident, 2)
	assert.Equal(t, "riverbend clay supply", confident[0].Subject, "ordered by confidence desc")

	verified, err := s.QueryEntities(ctx, EntityFilter{State: model.StateVerified})
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, "Riverbend Clay Supply", verified[0].Claims[model.FieldName].Value)

	matched, err := s.QueryEntities(ctx, EntityFilter{Subject: "riverbend"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "riverbend clay supply", matched[0].Subject)
}

func TestCache_RoundTripAndPurge(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	fresh := cache.Entry{
		Key:       cache.Key("https://riverbendclay.com", "lightweight"),
		Class:     cache.ClassPage,
		Value:     []byte("<html>page</html>"),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	stale := cache.Entry{
		Key:       cache.Key("https://old.example.com", "lightweight"),
		Class:     cache.ClassSearch,
		Value:     []byte("stale"),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.CacheSet(ctx, fresh))
	require.NoError(t, s.CacheSet(ctx, stale))

	got, ok, err := s.CacheGet(ctx, fresh.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fresh.Value, got.Value)
	assert.Equal(t, cache.ClassPage, got.Class)

	_, ok, err = s.CacheGet(ctx, stale.Key)
	require.NoError(t, err)
	assert.False(t, ok, "expired entries read as misses")

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheSet_Overwrite(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	key := cache.Key("https://riverbendclay.com", "rendered")
	first := cache.Entry{Key: key, Class: cache.ClassPage, Value: []byte("v1"), ExpiresAt: time.Now().Add(time.Hour)}
	second := cache.Entry{Key: key, Class: cache.ClassPage, Value: []byte("v2"), ExpiresAt: time.Now().Add(2 * time.Hour)}

	require.NoError(t, s.CacheSet(ctx, first))
	require.NoError(t, s.CacheSet(ctx, second))

	got, ok, err := s.CacheGet(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got.Value)
}
