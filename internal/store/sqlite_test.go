package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func floatPtr(f float64) *float64 { return &f }

func TestSQLiteProspectRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	p := &model.Prospect{
		Title:              "IT Support Services",
		Description:        "Help desk support for regional offices",
		Agency:             "General Services Administration",
		EstimatedValueText: "$1.2M",
		NaicsCode:          "541511",
		NaicsSource:        model.NaicsSourceOriginal,
		SetAside:           "Total Small Business Set-Aside",
		Extra:              map[string]any{"source_feed": "sam_gov"},
	}
	require.NoError(t, s.CreateProspect(ctx, p))
	require.NotEmpty(t, p.ID)

	got, err := s.GetProspect(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)
	assert.Equal(t, "541511", got.NaicsCode)
	assert.Equal(t, model.NaicsSourceOriginal, got.NaicsSource)
	assert.Equal(t, model.LockIdle, got.EnhancementStatus)
	assert.Nil(t, got.EnhancementStartedAt)
	assert.Equal(t, "sam_gov", got.ExtraString("source_feed"))

	got.EnhancedTitle = "Regional Office IT Help Desk Support"
	got.EstimatedValueSingle = floatPtr(1200000)
	now := time.Now().UTC()
	got.LastEnhancedAt = &now
	got.ModelVersion = "llama3:8b"
	require.NoError(t, s.PutProspect(ctx, got))

	got2, err := s.GetProspect(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Regional Office IT Help Desk Support", got2.EnhancedTitle)
	require.NotNil(t, got2.EstimatedValueSingle)
	assert.Equal(t, 1200000.0, *got2.EstimatedValueSingle)
	require.NotNil(t, got2.LastEnhancedAt)
	assert.Equal(t, "llama3:8b", got2.ModelVersion)
}

func TestSQLiteGetProspectNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.GetProspect(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSQLitePutProspectNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.PutProspect(context.Background(), &model.Prospect{ID: "missing"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSQLiteAcquireLock(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	p := &model.Prospect{Title: "Janitorial Services"}
	require.NoError(t, s.CreateProspect(ctx, p))

	t.Run("idle acquires", func(t *testing.T) {
		require.NoError(t, s.AcquireLock(ctx, p.ID, "worker-1"))

		got, err := s.GetProspect(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LockInProgress, got.EnhancementStatus)
		assert.Equal(t, "worker-1", got.EnhancementUserID)
		assert.NotNil(t, got.EnhancementStartedAt)
	})

	t.Run("same owner re-entrant", func(t *testing.T) {
		assert.NoError(t, s.AcquireLock(ctx, p.ID, "worker-1"))
	})

	t.Run("different owner conflicts", func(t *testing.T) {
		err := s.AcquireLock(ctx, p.ID, "worker-2")
		require.Error(t, err)
		assert.True(t, IsLockConflict(err))
	})

	t.Run("release resets to idle", func(t *testing.T) {
		require.NoError(t, s.ReleaseLock(ctx, p.ID))

		got, err := s.GetProspect(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LockIdle, got.EnhancementStatus)
		assert.Empty(t, got.EnhancementUserID)
		assert.Nil(t, got.EnhancementStartedAt)

		// Released lock is acquirable by anyone.
		assert.NoError(t, s.AcquireLock(ctx, p.ID, "worker-2"))
	})

	t.Run("missing prospect", func(t *testing.T) {
		err := s.AcquireLock(ctx, "missing", "worker-1")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

func TestSQLiteReclaimStaleLocks(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	stale := &model.Prospect{Title: "Stale"}
	fresh := &model.Prospect{Title: "Fresh"}
	require.NoError(t, s.CreateProspect(ctx, stale))
	require.NoError(t, s.CreateProspect(ctx, fresh))
	require.NoError(t, s.AcquireLock(ctx, stale.ID, "crashed-worker"))
	require.NoError(t, s.AcquireLock(ctx, fresh.ID, "live-worker"))

	// Age the stale lock to 11 minutes against a 10 minute threshold.
	_, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET enhancement_started_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-11*time.Minute), stale.ID)
	require.NoError(t, err)

	n, err := s.ReclaimStaleLocks(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetProspect(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LockIdle, got.EnhancementStatus)

	// The 9-minutes-young lock is untouched.
	got, err = s.GetProspect(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LockInProgress, got.EnhancementStatus)
}

func TestSQLiteListMissingKind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	complete := &model.Prospect{
		Title:                "Complete",
		EnhancedTitle:        "Complete (enhanced)",
		EstimatedValueSingle: floatPtr(5000),
		NaicsCode:            "541511",
		NaicsDescription:     "Custom Computer Programming Services",
		SetAsideStandard:     "SBA",
	}
	bare := &model.Prospect{Title: "Bare"}
	ranged := &model.Prospect{
		Title:             "Ranged",
		EstimatedValueMin: floatPtr(1000),
		EstimatedValueMax: floatPtr(2000),
	}
	codeOnly := &model.Prospect{Title: "CodeOnly", NaicsCode: "541512"}

	for _, p := range []*model.Prospect{complete, bare, ranged, codeOnly} {
		require.NoError(t, s.CreateProspect(ctx, p))
	}

	tests := []struct {
		kind model.Kind
		want []string
	}{
		{model.KindTitle, []string{bare.ID, ranged.ID, codeOnly.ID}},
		{model.KindValue, []string{bare.ID, codeOnly.ID}},
		// codeOnly still needs a description backfill, so it counts as missing.
		{model.KindNaics, []string{bare.ID, ranged.ID, codeOnly.ID}},
		{model.KindSetAside, []string{bare.ID, ranged.ID, codeOnly.ID}},
	}
	for _, tc := range tests {
		ids, err := s.ListMissingKind(ctx, tc.kind, 100)
		require.NoError(t, err, string(tc.kind))
		assert.ElementsMatch(t, tc.want, ids, string(tc.kind))
	}

	n, err := s.CountProspects(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSQLiteAppendAudit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AppendAudit(ctx, model.AuditEntry{
		ProspectID:    "p1",
		UseCase:       "naics_classification",
		Model:         "llama3:8b",
		PromptChars:   512,
		ResponseChars: 64,
		Success:       true,
		LatencyMS:     2100,
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE prospect_id = 'p1'`).Scan(&count))
	assert.Equal(t, 1, count)
}
