package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathoai/patho-console/internal/billing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	c, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleCases() []billing.Case {
	return []billing.Case{
		{
			ID:          1,
			PatientID:   "PT-8829",
			PatientName: "Jane Doe",
			SlideID:     "WSI-2024-8829",
			Diagnosis:   "Invasive Ductal Carcinoma",
			Status:      billing.StatusPending,
			ImageURL:    "http://localhost:8000/static/slides/WSI-2024-8829.png",
			BaseCPT:     "88305",
			CreatedAt:   "2024-11-02T09:15:00",
		},
		{
			ID:              2,
			PatientID:       "PT-4417",
			PatientName:     "John Smith",
			SlideID:         "WSI-2024-4417",
			Diagnosis:       "Prostate Adenocarcinoma",
			Status:          billing.StatusVerified,
			BaseCPT:         "88305",
			SuggestedCPT:    "88307",
			RecoveryValue:   13.0,
			ConfidenceScore: 0.94,
			CreatedAt:       "2024-11-03T14:22:00",
		},
		{
			ID:          3,
			PatientID:   "PT-1205",
			PatientName: "Mary Chen",
			SlideID:     "WSI-2024-1205",
			Diagnosis:   "Melanoma In Situ",
			Status:      billing.StatusAnalyzed,
			BaseCPT:     "88305",
			CreatedAt:   "2024-11-04T08:47:00",
		},
	}
}

func TestNewCache(t *testing.T) {
	c := newTestCache(t)
	assert.NotNil(t, c.db)
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	err := c.SaveSnapshot(ctx, sampleCases())
	require.NoError(t, err)

	cases, fetchedAt, err := c.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 3)

	// Server order survives the round trip.
	assert.Equal(t, "WSI-2024-8829", cases[0].SlideID)
	assert.Equal(t, "WSI-2024-4417", cases[1].SlideID)
	assert.Equal(t, "WSI-2024-1205", cases[2].SlideID)

	assert.Equal(t, int64(2), cases[1].ID)
	assert.Equal(t, "John Smith", cases[1].PatientName)
	assert.Equal(t, billing.StatusVerified, cases[1].Status)
	assert.Equal(t, "88307", cases[1].SuggestedCPT)
	assert.InDelta(t, 13.0, cases[1].RecoveryValue, 0.001)
	assert.InDelta(t, 0.94, cases[1].ConfidenceScore, 0.001)
	assert.Equal(t, "2024-11-03T14:22:00", cases[1].CreatedAt)

	assert.False(t, fetchedAt.IsZero())
	assert.True(t, fetchedAt.After(before))
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveSnapshot(ctx, sampleCases()))

	// A smaller refresh fully replaces the previous snapshot.
	require.NoError(t, c.SaveSnapshot(ctx, sampleCases()[:1]))

	cases, _, err := c.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "WSI-2024-8829", cases[0].SlideID)
}

func TestLoadSnapshotEmpty(t *testing.T) {
	c := newTestCache(t)

	cases, fetchedAt, err := c.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.True(t, fetchedAt.IsZero())
}

func TestAppendAndListInteractions(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.AppendInteraction(ctx, Interaction{
		SlideID:   "WSI-2024-8829",
		Action:    "SELECTED",
		Actor:     "pathologist",
		CreatedAt: time.Now().Add(-2 * time.Minute),
	})
	require.NoError(t, err)

	err = c.AppendInteraction(ctx, Interaction{
		SlideID:   "WSI-2024-8829",
		Action:    "ANALYZED",
		Actor:     "pathologist",
		Details:   "88305 -> 88307",
		CreatedAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	err = c.AppendInteraction(ctx, Interaction{
		SlideID: "WSI-2024-4417",
		Action:  "SELECTED",
		Actor:   "pathologist",
	})
	require.NoError(t, err)

	entries, err := c.RecentInteractions(ctx, "WSI-2024-8829", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "ANALYZED", entries[0].Action)
	assert.Equal(t, "88305 -> 88307", entries[0].Details)
	assert.Equal(t, "SELECTED", entries[1].Action)

	all, err := c.RecentInteractions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := c.RecentInteractions(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAppendInteractionGeneratesID(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.LogAction(ctx, "WSI-2024-8829", "VERIFIED", "Dr. Sarah Chen", ""))

	entries, err := c.RecentInteractions(ctx, "WSI-2024-8829", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "Dr. Sarah Chen", entries[0].Actor)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestInteractionCount(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	count, err := c.InteractionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, c.LogAction(ctx, "WSI-2024-8829", "SELECTED", "pathologist", ""))
	require.NoError(t, c.LogAction(ctx, "WSI-2024-8829", "ANALYZED", "pathologist", ""))

	count, err = c.InteractionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReset(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveSnapshot(ctx, sampleCases()))
	require.NoError(t, c.LogAction(ctx, "WSI-2024-8829", "SELECTED", "pathologist", ""))

	require.NoError(t, c.Reset(ctx))

	cases, fetchedAt, err := c.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.True(t, fetchedAt.IsZero())

	count, err := c.InteractionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
