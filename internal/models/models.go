package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Sex uses the directory's encoding: 0 unspecified, 1 female, 2 male.
type Sex int

const (
	SexAny    Sex = 0
	SexFemale Sex = 1
	SexMale   Sex = 2
)

func (s Sex) String() string {
	switch s {
	case SexFemale:
		return "female"
	case SexMale:
		return "male"
	default:
		return "any"
	}
}

// Opposite returns the sex to search for by default.
func (s Sex) Opposite() Sex {
	switch s {
	case SexFemale:
		return SexMale
	case SexMale:
		return SexFemale
	default:
		return SexAny
	}
}

// Status is the directory's relationship-status code.
type Status int

const (
	StatusSingle Status = iota + 1
	StatusInRelationship
	StatusEngaged
	StatusMarried
	StatusComplicated
	StatusActivelySearching
	StatusInLove
	StatusCivilUnion
)

var statusLabels = map[Status]string{
	StatusSingle:            "Single",
	StatusInRelationship:    "In a relationship",
	StatusEngaged:           "Engaged",
	StatusMarried:           "Married",
	StatusComplicated:       "It's complicated",
	StatusActivelySearching: "Actively searching",
	StatusInLove:            "In love",
	StatusCivilUnion:        "In a civil union",
}

func (s Status) Label() string {
	return statusLabels[s]
}

// AllStatuses returns the statuses in button-grid order.
func AllStatuses() []Status {
	return []Status{
		StatusSingle, StatusInRelationship, StatusEngaged, StatusMarried,
		StatusComplicated, StatusActivelySearching, StatusInLove, StatusCivilUnion,
	}
}

// Sort is the directory's search ordering code.
type Sort int

const (
	SortByPopularity Sort = 0
	SortByNewest     Sort = 1
)

func (s Sort) Label() string {
	if s == SortByNewest {
		return "Newest first"
	}
	return "By popularity"
}

// Decision is the outcome of a review; empty while the candidate is unreviewed.
type Decision string

const (
	DecisionNone     Decision = ""
	DecisionLiked    Decision = "liked"
	DecisionDisliked Decision = "disliked"
)

// SearchFilters is one fully resolved search intent.
type SearchFilters struct {
	Sex     Sex
	CityID  int64
	AgeFrom int
	AgeTo   int
	Status  Status
	Sort    Sort
}

// Requester is the person talking to the bot, keyed by directory identity.
type Requester struct {
	bun.BaseModel `bun:"table:requesters,alias:r"`

	ID        int64  `bun:",pk"`
	FirstName string `bun:",notnull"`
	LastName  string
	Sex       Sex
	CityID    int64
	Link      string
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

func (r *Requester) DisplayName() string {
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// Country, Region and City mirror the directory's location hierarchy.
// IDs are the directory's own, stable across both systems.
type Country struct {
	bun.BaseModel `bun:"table:countries,alias:co"`

	ID    int64  `bun:",pk"`
	Title string `bun:",notnull"`
}

type Region struct {
	bun.BaseModel `bun:"table:regions,alias:rg"`

	ID        int64  `bun:",pk"`
	Title     string `bun:",notnull"`
	CountryID int64
}

type City struct {
	bun.BaseModel `bun:"table:cities,alias:ci"`

	ID          int64  `bun:",pk"`
	Title       string `bun:",notnull"`
	Area        string
	RegionTitle string
	RegionID    int64
}

// SearchQuery is one persisted search invocation. Immutable once written.
type SearchQuery struct {
	bun.BaseModel `bun:"table:queries,alias:q"`

	ID          int64 `bun:",pk,autoincrement"`
	RequesterID int64 `bun:",notnull"`
	Sex         Sex
	CityID      int64
	AgeFrom     int
	AgeTo       int
	Status      Status
	Sort        Sort
	CreatedAt   time.Time `bun:",notnull"`
}

// Candidate is a directory profile surfaced to a requester. A directory
// identity appears at most once per requester; QueryID is reassigned to
// newer queries while the candidate is unreviewed (carry-forward).
type Candidate struct {
	bun.BaseModel `bun:"table:candidates,alias:c"`

	ID          int64 `bun:",pk,autoincrement"`
	RequesterID int64 `bun:",notnull,unique:candidates_requester_directory_key"`
	DirectoryID int64 `bun:",notnull,unique:candidates_requester_directory_key"`
	QueryID     int64 `bun:",notnull"`
	FirstName   string
	LastName    string
	Link        string
	CityID      int64
	CityTitle   string
	Verified    bool
	Reviewed    bool
	Decision    Decision
}

func (c *Candidate) DisplayName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
