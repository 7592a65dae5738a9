// Package search turns a resolved search intent into a deduplicated,
// persisted candidate batch.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/directory"
	"github.com/pairup/matchmaker-bot/internal/models"
	"github.com/pairup/matchmaker-bot/internal/store"
)

// ErrNoMatches means the directory itself found nobody. No search
// query is persisted in that case.
var ErrNoMatches = errors.New("search: directory returned no matches")

const (
	searchAttempts = 3
	retryBaseDelay = 500 * time.Millisecond
)

type Engine struct {
	dir   directory.Client
	store *store.Store
	log   *zap.Logger
}

func New(dir directory.Client, st *store.Store, logger *zap.Logger) *Engine {
	return &Engine{dir: dir, store: st, log: logger}
}

// Run executes one search for the requester: calls the directory,
// persists the query, and upserts every open returned profile. The
// returned batch size counts candidates now associated with this
// query, including unreviewed ones carried forward from earlier
// queries; already-reviewed candidates are never resurfaced. A batch
// size of zero means everyone returned was reviewed before, which is
// distinct from ErrNoMatches.
func (e *Engine) Run(ctx context.Context, requesterID int64, filters models.SearchFilters) (int, int64, error) {
	people, err := e.searchWithRetry(ctx, filters)
	if err != nil {
		return 0, 0, fmt.Errorf("directory search failed: %w", err)
	}
	if len(people) == 0 {
		return 0, 0, ErrNoMatches
	}

	var cityTitle string
	if city, err := e.store.CityByID(ctx, filters.CityID); err == nil {
		cityTitle = city.Title
	}

	query := &models.SearchQuery{
		RequesterID: requesterID,
		Sex:         filters.Sex,
		CityID:      filters.CityID,
		AgeFrom:     filters.AgeFrom,
		AgeTo:       filters.AgeTo,
		Status:      filters.Status,
		Sort:        filters.Sort,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.InsertQuery(ctx, query); err != nil {
		return 0, 0, err
	}

	batch := 0
	for _, p := range people {
		if p.Closed {
			continue
		}
		if p.ID == 0 || p.FirstName == "" {
			e.log.Warn("dropping malformed directory item",
				zap.Int64("directory_id", p.ID), zap.Int64("query_id", query.ID))
			continue
		}

		counted, err := e.store.UpsertCandidate(ctx, &models.Candidate{
			RequesterID: requesterID,
			DirectoryID: p.ID,
			QueryID:     query.ID,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Link:        p.Link,
			CityID:      filters.CityID,
			CityTitle:   cityTitle,
			Verified:    p.Verified,
		})
		if err != nil {
			return 0, 0, err
		}
		if counted {
			batch++
		}
	}

	return batch, query.ID, nil
}

func (e *Engine) searchWithRetry(ctx context.Context, filters models.SearchFilters) ([]directory.Person, error) {
	var lastErr error
	for attempt := 1; attempt <= searchAttempts; attempt++ {
		people, err := e.dir.SearchPeople(ctx, filters)
		if err == nil {
			return people, nil
		}
		lastErr = err
		e.log.Warn("directory search attempt failed",
			zap.Int("attempt", attempt), zap.Error(err))

		if attempt == searchAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBaseDelay):
		}
	}
	return nil, lastErr
}
