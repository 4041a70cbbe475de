package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factloop/internal/model"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), model.ArchiveConfig{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(id string, finished time.Time) *model.Result {
	return &model.Result{
		SessionID:        id,
		Claim:            model.Claim{Text: "Tap water in the city contains lead"},
		CheckPoints:      model.CheckPoints{"1. Lead levels in tap water"},
		CheckPointStatus: model.CheckPointsOK,
		EvidenceStatus:   model.EvidenceOK,
		Rounds: []model.RoundRecord{
			{Round: 1, Question: "Which districts were sampled?", Source: model.QuestionAISuggested},
		},
		TerminatedBy: "stopped",
		Report: &model.FinalReport{
			Tag:        model.TagFalse,
			Paragraphs: []model.Paragraph{{Text: "Tests found no lead [1].", References: []int{1}}},
			References: []model.Reference{{Index: 1, URL: "https://example.org/water"}},
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	finished := time.Date(2025, 9, 11, 8, 30, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleResult("s-1", finished)))

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Tap water in the city contains lead", got.Claim.Text)
	assert.Equal(t, model.TagFalse, got.Report.Tag)
	require.Len(t, got.Rounds, 1)
	assert.Equal(t, model.QuestionAISuggested, got.Rounds[0].Source)
	assert.True(t, got.FinishedAt.Equal(finished))
}

func TestSaveReplacesExisting(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	finished := time.Date(2025, 9, 11, 8, 30, 0, 0, time.UTC)

	first := sampleResult("s-1", finished)
	require.NoError(t, s.Save(ctx, first))

	second := sampleResult("s-1", finished.Add(time.Hour))
	second.Report.Tag = model.TagTrue
	require.NoError(t, s.Save(ctx, second))

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(model.TagTrue), entries[0].Verdict)
}

func TestGetMissing(t *testing.T) {
	s := openMemory(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 11, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, sampleResult(id, base.Add(time.Duration(i)*time.Minute))))
	}

	failed := sampleResult("d", base.Add(-time.Hour))
	failed.Report = nil
	failed.TerminatedBy = ""
	failed.Error = "oracle: upstream unavailable"
	require.NoError(t, s.Save(ctx, failed))

	entries, err := s.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, 1, entries[0].Rounds)
	assert.Equal(t, "stopped", entries[0].TerminatedBy)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	last := all[3]
	assert.Equal(t, "d", last.ID)
	assert.True(t, last.Failed)
	assert.Empty(t, last.Verdict)
}

func TestSaveRejectsMissingID(t *testing.T) {
	s := openMemory(t)
	assert.Error(t, s.Save(context.Background(), &model.Result{}))
	assert.Error(t, s.Save(context.Background(), nil))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := Open(ctx, model.ArchiveConfig{Driver: DriverSQLite, DSN: path})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleResult("s-1", time.Now())))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, model.ArchiveConfig{Driver: DriverSQLite, DSN: path})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.SessionID)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, model.ArchiveConfig{})
	assert.Error(t, err)
	_, err = Open(ctx, model.ArchiveConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
	_, err = Open(ctx, model.ArchiveConfig{Driver: DriverPostgres})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}
