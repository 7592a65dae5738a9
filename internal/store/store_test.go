package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRequester(t *testing.T, s *Store, id int64) {
	t.Helper()
	require.NoError(t, s.InsertRequester(context.Background(), &models.Requester{
		ID:        id,
		FirstName: "Sam",
		CityID:    1,
	}))
}

func seedQuery(t *testing.T, s *Store, requesterID int64, at time.Time) int64 {
	t.Helper()
	q := &models.SearchQuery{
		RequesterID: requesterID,
		Sex:         models.SexFemale,
		CityID:      1,
		AgeFrom:     18,
		AgeTo:       100,
		Status:      models.StatusActivelySearching,
		CreatedAt:   at,
	}
	require.NoError(t, s.InsertQuery(context.Background(), q))
	require.NotZero(t, q.ID)
	return q.ID
}

func candidate(requesterID, directoryID, queryID int64) *models.Candidate {
	return &models.Candidate{
		RequesterID: requesterID,
		DirectoryID: directoryID,
		QueryID:     queryID,
		FirstName:   "Alex",
		Link:        "https://example.org/alex",
	}
}

func TestUpsertCandidateInsertsNew(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRequester(t, s, 42)
	queryID := seedQuery(t, s, 42, time.Now())

	counted, err := s.UpsertCandidate(ctx, candidate(42, 1001, queryID))
	require.NoError(t, err)
	assert.True(t, counted)

	batch, err := s.FetchUnreviewed(ctx, 42, queryID)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(1001), batch[0].DirectoryID)
	assert.False(t, batch[0].Reviewed)
	assert.Equal(t, models.DecisionNone, batch[0].Decision)
}

func TestUpsertCandidateCarriesForwardUnreviewed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRequester(t, s, 42)
	first := seedQuery(t, s, 42, time.Now().Add(-time.Hour))
	second := seedQuery(t, s, 42, time.Now())

	counted, err := s.UpsertCandidate(ctx, candidate(42, 1001, first))
	require.NoError(t, err)
	require.True(t, counted)

	counted, err = s.UpsertCandidate(ctx, candidate(42, 1001, second))
	require.NoError(t, err)
	assert.True(t, counted, "unreviewed candidate should count toward the new batch")

	// Exactly one row, now attached to the newer query.
	old, err := s.FetchUnreviewed(ctx, 42, first)
	require.NoError(t, err)
	assert.Empty(t, old)

	batch, err := s.FetchUnreviewed(ctx, 42, second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(1001), batch[0].DirectoryID)
}

func TestUpsertCandidateNeverResurfacesReviewed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRequester(t, s, 42)
	first := seedQuery(t, s, 42, time.Now().Add(-time.Hour))

	_, err := s.UpsertCandidate(ctx, candidate(42, 1001, first))
	require.NoError(t, err)

	batch, err := s.FetchUnreviewed(ctx, 42, first)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, s.MarkReviewed(ctx, batch[0].ID, true))

	second := seedQuery(t, s, 42, time.Now())
	counted, err := s.UpsertCandidate(ctx, candidate(42, 1001, second))
	require.NoError(t, err)
	assert.False(t, counted)

	newBatch, err := s.FetchUnreviewed(ctx, 42, second)
	require.NoError(t, err)
	assert.Empty(t, newBatch)

	// The original decision is untouched.
	liked, err := s.FetchByDecision(ctx, 42, true)
	require.NoError(t, err)
	require.Len(t, liked, 1)
	assert.Equal(t, models.DecisionLiked, liked[0].Decision)
}

func TestSameDirectoryIdentityForDifferentRequesters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRequester(t, s, 42)
	seedRequester(t, s, 43)
	q42 := seedQuery(t, s, 42, time.Now())
	q43 := seedQuery(t, s, 43, time.Now())

	counted, err := s.UpsertCandidate(ctx, candidate(42, 1001, q42))
	require.NoError(t, err)
	require.True(t, counted)

	counted, err = s.UpsertCandidate(ctx, candidate(43, 1001, q43))
	require.NoError(t, err)
	assert.True(t, counted, "dedup is scoped per requester")
}

func TestDecisionPartition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRequester(t, s, 42)
	queryID := seedQuery(t, s, 42, time.Now())

	for directoryID := int64(1001); directoryID <= 1004; directoryID++ {
		_, err := s.UpsertCandidate(ctx, candidate(42, directoryID, queryID))
		require.NoError(t, err)
	}

	batch, err := s.FetchUnreviewed(ctx, 42, queryID)
	require.NoError(t, err)
	require.Len(t, batch, 4)

	require.NoError(t, s.MarkReviewed(ctx, batch[0].ID, true))
	require.NoError(t, s.MarkReviewed(ctx, batch[1].ID, false))

	liked, err := s.FetchByDecision(ctx, 42, true)
	require.NoError(t, err)
	disliked, err := s.FetchByDecision(ctx, 42, false)
	require.NoError(t, err)
	unreviewed, err := s.FetchCandidates(ctx, 42, CandidateScope{})
	require.NoError(t, err)

	assert.Len(t, liked, 1)
	assert.Len(t, disliked, 1)
	assert.Len(t, unreviewed, 2)

	seen := map[int64]int{}
	for _, group := range [][]models.Candidate{liked, disliked, unreviewed} {
		for _, c := range group {
			seen[c.ID]++
		}
	}
	assert.Len(t, seen, 4, "every candidate appears in exactly one partition")
	for id, count := range seen {
		assert.Equal(t, 1, count, "candidate %d appears more than once", id)
	}
}

func TestFetchCandidatesConflictingScope(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FetchCandidates(context.Background(), 42, CandidateScope{
		QueryID:  1,
		Decision: models.DecisionLiked,
	})
	assert.ErrorIs(t, err, ErrConflictingScope)
}

func TestFetchMostRecentUnreviewed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRequester(t, s, 42)

	_, err := s.FetchMostRecentUnreviewed(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	old := seedQuery(t, s, 42, time.Now().Add(-time.Hour))
	_, err = s.UpsertCandidate(ctx, candidate(42, 1001, old))
	require.NoError(t, err)

	latest := seedQuery(t, s, 42, time.Now())
	_, err = s.UpsertCandidate(ctx, candidate(42, 1002, latest))
	require.NoError(t, err)

	batch, err := s.FetchMostRecentUnreviewed(ctx, 42)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(1002), batch[0].DirectoryID)
}

func TestMarkReviewedIsFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRequester(t, s, 42)
	queryID := seedQuery(t, s, 42, time.Now())

	_, err := s.UpsertCandidate(ctx, candidate(42, 1001, queryID))
	require.NoError(t, err)
	batch, err := s.FetchUnreviewed(ctx, 42, queryID)
	require.NoError(t, err)

	require.NoError(t, s.MarkReviewed(ctx, batch[0].ID, false))
	assert.ErrorIs(t, s.MarkReviewed(ctx, batch[0].ID, true), ErrNotFound)

	disliked, err := s.FetchByDecision(ctx, 42, false)
	require.NoError(t, err)
	require.Len(t, disliked, 1)
	assert.Equal(t, models.DecisionDisliked, disliked[0].Decision)
}

func TestCitiesByPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertCity(ctx, &models.City{ID: 1, Title: "Amsterdam", RegionTitle: "North Holland"}))
	require.NoError(t, s.InsertCity(ctx, &models.City{ID: 2, Title: "Amstelveen", RegionTitle: "North Holland"}))
	require.NoError(t, s.InsertCity(ctx, &models.City{ID: 3, Title: "Berlin", RegionTitle: "Berlin"}))

	cities, err := s.CitiesByPrefix(ctx, "Amst")
	require.NoError(t, err)
	assert.Len(t, cities, 2)

	cities, err = s.CitiesByPrefix(ctx, "Amsterdam")
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, int64(1), cities[0].ID)
}

func TestHasQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRequester(t, s, 42)

	has, err := s.HasQueries(ctx, 42)
	require.NoError(t, err)
	assert.False(t, has)

	seedQuery(t, s, 42, time.Now())
	has, err = s.HasQueries(ctx, 42)
	require.NoError(t, err)
	assert.True(t, has)
}
