// Package store is the durable record of requesters, search queries and
// every candidate ever surfaced, backed by SQLite through bun.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/models"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflictingScope means a candidate fetch asked for both a query
	// scope and a decision scope. That is a programming error, not a
	// runtime condition.
	ErrConflictingScope = errors.New("store: query scope and decision scope are mutually exclusive")
)

type Store struct {
	db  *bun.DB
	log *zap.Logger
}

// New opens (or creates) the SQLite database at path and ensures the
// schema exists.
func New(path string, logger *zap.Logger) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer: the dispatch loop is the only caller, and a single
	// connection keeps in-memory databases usable in tests.
	sqldb.SetMaxOpenConns(1)

	s := &Store{
		db:  bun.NewDB(sqldb, sqlitedialect.New()),
		log: logger,
	}
	if err := s.init(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	tables := []interface{}{
		(*models.Country)(nil),
		(*models.Region)(nil),
		(*models.City)(nil),
		(*models.Requester)(nil),
		(*models.SearchQuery)(nil),
		(*models.Candidate)(nil),
	}
	for _, table := range tables {
		if _, err := s.db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- requesters ---

func (s *Store) GetRequester(ctx context.Context, id int64) (*models.Requester, error) {
	req := new(models.Requester)
	err := s.db.NewSelect().Model(req).Where("r.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load requester %d: %w", id, err)
	}
	return req, nil
}

func (s *Store) InsertRequester(ctx context.Context, req *models.Requester) error {
	_, err := s.db.NewInsert().
		Model(req).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert requester %d: %w", req.ID, err)
	}
	return nil
}

func (s *Store) UpdateRequesterCity(ctx context.Context, id, cityID int64) error {
	_, err := s.db.NewUpdate().
		Model((*models.Requester)(nil)).
		Set("city_id = ?", cityID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update requester %d city: %w", id, err)
	}
	return nil
}

// --- location reference data ---

func (s *Store) CountryByID(ctx context.Context, id int64) (*models.Country, error) {
	country := new(models.Country)
	err := s.db.NewSelect().Model(country).Where("co.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load country %d: %w", id, err)
	}
	return country, nil
}

func (s *Store) RegionByID(ctx context.Context, id int64) (*models.Region, error) {
	region := new(models.Region)
	err := s.db.NewSelect().Model(region).Where("rg.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load region %d: %w", id, err)
	}
	return region, nil
}

func (s *Store) CityByID(ctx context.Context, id int64) (*models.City, error) {
	city := new(models.City)
	err := s.db.NewSelect().Model(city).Where("ci.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load city %d: %w", id, err)
	}
	return city, nil
}

// CitiesByPrefix returns stored cities whose title starts with prefix,
// ordered by region so disambiguation lists group neighbours together.
func (s *Store) CitiesByPrefix(ctx context.Context, prefix string) ([]models.City, error) {
	var cities []models.City
	err := s.db.NewSelect().
		Model(&cities).
		Where("ci.title LIKE ?", prefix+"%").
		Order("region_title ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search cities by prefix %q: %w", prefix, err)
	}
	return cities, nil
}

func (s *Store) InsertRegion(ctx context.Context, region *models.Region) error {
	_, err := s.db.NewInsert().
		Model(region).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert region %d: %w", region.ID, err)
	}
	return nil
}

func (s *Store) InsertCity(ctx context.Context, city *models.City) error {
	_, err := s.db.NewInsert().
		Model(city).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert city %d: %w", city.ID, err)
	}
	return nil
}

// BackfillCityRegion fills in a missing region link on a stored city.
// This is the only mutation cities ever receive.
func (s *Store) BackfillCityRegion(ctx context.Context, cityID, regionID int64, regionTitle string) error {
	_, err := s.db.NewUpdate().
		Model((*models.City)(nil)).
		Set("region_id = ?", regionID).
		Set("region_title = ?", regionTitle).
		Where("id = ?", cityID).
		Where("region_id = 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to backfill region for city %d: %w", cityID, err)
	}
	return nil
}

// --- search queries ---

func (s *Store) InsertQuery(ctx context.Context, query *models.SearchQuery) error {
	if _, err := s.db.NewInsert().Model(query).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert search query: %w", err)
	}
	return nil
}

// LatestQueryID resolves the requester's most recent search query.
func (s *Store) LatestQueryID(ctx context.Context, requesterID int64) (int64, error) {
	query := new(models.SearchQuery)
	err := s.db.NewSelect().
		Model(query).
		Where("q.requester_id = ?", requesterID).
		Order("created_at DESC", "id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve latest query for requester %d: %w", requesterID, err)
	}
	return query.ID, nil
}

func (s *Store) HasQueries(ctx context.Context, requesterID int64) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*models.SearchQuery)(nil)).
		Where("q.requester_id = ?", requesterID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check query history for requester %d: %w", requesterID, err)
	}
	return exists, nil
}

// --- candidates ---

// UpsertCandidate inserts a newly surfaced candidate, or reassigns an
// existing unreviewed row for the same (requester, directory identity)
// pair to cand.QueryID. A row that is already reviewed is left alone.
// Returns whether the candidate now belongs to cand.QueryID and should
// count toward the batch.
func (s *Store) UpsertCandidate(ctx context.Context, cand *models.Candidate) (bool, error) {
	res, err := s.db.NewInsert().
		Model(cand).
		On("CONFLICT (requester_id, directory_id) DO UPDATE").
		Set("query_id = EXCLUDED.query_id").
		Where("reviewed = 0").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to upsert candidate %d for requester %d: %w",
			cand.DirectoryID, cand.RequesterID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read upsert result: %w", err)
	}
	return affected > 0, nil
}

// CandidateScope selects which candidates to fetch. At most one of
// QueryID and Decision may be set.
type CandidateScope struct {
	QueryID  int64           // unreviewed candidates of this batch
	Decision models.Decision // reviewed candidates with this decision, across all queries
}

// FetchCandidates returns candidates for the requester in surfacing
// order. Setting both scopes fails fast with ErrConflictingScope.
func (s *Store) FetchCandidates(ctx context.Context, requesterID int64, scope CandidateScope) ([]models.Candidate, error) {
	if scope.QueryID != 0 && scope.Decision != models.DecisionNone {
		return nil, ErrConflictingScope
	}

	var candidates []models.Candidate
	q := s.db.NewSelect().
		Model(&candidates).
		Where("c.requester_id = ?", requesterID).
		Order("id ASC")

	switch {
	case scope.QueryID != 0:
		q = q.Where("c.query_id = ?", scope.QueryID).Where("c.reviewed = 0")
	case scope.Decision != models.DecisionNone:
		q = q.Where("c.reviewed = 1").Where("c.decision = ?", scope.Decision)
	default:
		q = q.Where("c.reviewed = 0")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch candidates for requester %d: %w", requesterID, err)
	}
	return candidates, nil
}

// FetchUnreviewed returns the unreviewed candidates of one batch.
func (s *Store) FetchUnreviewed(ctx context.Context, requesterID, queryID int64) ([]models.Candidate, error) {
	return s.FetchCandidates(ctx, requesterID, CandidateScope{QueryID: queryID})
}

// FetchMostRecentUnreviewed resolves the requester's latest query and
// returns its unreviewed candidates. ErrNotFound when the requester has
// never searched.
func (s *Store) FetchMostRecentUnreviewed(ctx context.Context, requesterID int64) ([]models.Candidate, error) {
	queryID, err := s.LatestQueryID(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	return s.FetchUnreviewed(ctx, requesterID, queryID)
}

// FetchByDecision returns all reviewed candidates with the given
// decision, independent of which query surfaced them.
func (s *Store) FetchByDecision(ctx context.Context, requesterID int64, liked bool) ([]models.Candidate, error) {
	decision := models.DecisionDisliked
	if liked {
		decision = models.DecisionLiked
	}
	return s.FetchCandidates(ctx, requesterID, CandidateScope{Decision: decision})
}

// MarkReviewed commits a decision. Reviewed candidates are immutable,
// so the update is conditional on the row still being unreviewed.
func (s *Store) MarkReviewed(ctx context.Context, candidateID int64, liked bool) error {
	decision := models.DecisionDisliked
	if liked {
		decision = models.DecisionLiked
	}

	res, err := s.db.NewUpdate().
		Model((*models.Candidate)(nil)).
		Set("reviewed = 1").
		Set("decision = ?", decision).
		Where("id = ?", candidateID).
		Where("reviewed = 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark candidate %d reviewed: %w", candidateID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read review result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("candidate %d: %w", candidateID, ErrNotFound)
	}
	return nil
}
