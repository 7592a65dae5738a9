// Package directory defines the boundary to the external people
// directory. The bot consumes this API; it does not own it.
package directory

import (
	"context"
	"fmt"
	"sort"

	"github.com/pairup/matchmaker-bot/internal/models"
)

// Profile is a requester's own directory record.
type Profile struct {
	ID        int64
	FirstName string
	LastName  string
	Sex       models.Sex
	CountryID int64
	CityID    int64
	CityTitle string
	Link      string
}

// Person is one search result. Closed profiles are returned by the
// directory but are never surfaced to requesters.
type Person struct {
	ID        int64
	FirstName string
	LastName  string
	Link      string
	CityID    int64
	Closed    bool
	Verified  bool
}

// Media is one media item on a person's profile.
type Media struct {
	ID         int64
	OwnerID    int64
	Popularity int
}

// Ref formats the item as a transport attachment reference.
func (m Media) Ref() string {
	return fmt.Sprintf("photo%d_%d", m.OwnerID, m.ID)
}

// Client is the external directory service. Searches always request
// open profiles with at least one photo; those parameters are fixed on
// the directory side of this boundary.
type Client interface {
	Profile(ctx context.Context, id int64) (*Profile, error)
	SearchPeople(ctx context.Context, filters models.SearchFilters) ([]Person, error)
	TopMedia(ctx context.Context, ownerID int64) ([]Media, error)
}

// TopN returns the n most popular media items, most popular first.
func TopN(media []Media, n int) []Media {
	ranked := make([]Media, len(media))
	copy(ranked, media)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Popularity > ranked[j].Popularity
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
