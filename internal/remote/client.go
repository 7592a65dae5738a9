// Package remote is the HTTP client for the upstream people-directory
// and location-lookup API. It implements directory.Client and
// location.Service; the API itself is owned by the upstream service.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/directory"
	"github.com/pairup/matchmaker-bot/internal/location"
	"github.com/pairup/matchmaker-bot/internal/models"
)

type Client struct {
	base  string
	token string
	http  *http.Client
	log   *zap.Logger
}

func New(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		base:  baseURL,
		token: token,
		http:  &http.Client{Timeout: timeout},
		log:   logger,
	}
}

type personPayload struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Link      string `json:"link"`
	CityID    int64  `json:"city_id"`
	IsClosed  bool   `json:"is_closed"`
	Verified  bool   `json:"verified"`
}

type profilePayload struct {
	personPayload
	Sex       int    `json:"sex"`
	CountryID int64  `json:"country_id"`
	CityTitle string `json:"city_title"`
}

type mediaPayload struct {
	ID         int64 `json:"id"`
	OwnerID    int64 `json:"owner_id"`
	Popularity int   `json:"popularity"`
}

type cityPayload struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Area     string `json:"area"`
	Region   string `json:"region"`
	RegionID int64  `json:"region_id"`
}

type regionPayload struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CountryID int64  `json:"country_id"`
}

func (c *Client) Profile(ctx context.Context, id int64) (*directory.Profile, error) {
	var payload profilePayload
	params := url.Values{"user_id": {strconv.FormatInt(id, 10)}}
	if err := c.get(ctx, "/users/get", params, &payload); err != nil {
		return nil, err
	}
	return &directory.Profile{
		ID:        payload.ID,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Sex:       models.Sex(payload.Sex),
		CountryID: payload.CountryID,
		CityID:    payload.CityID,
		CityTitle: payload.CityTitle,
		Link:      payload.Link,
	}, nil
}

func (c *Client) SearchPeople(ctx context.Context, filters models.SearchFilters) ([]directory.Person, error) {
	params := url.Values{
		"city_id":  {strconv.FormatInt(filters.CityID, 10)},
		"sex":      {strconv.Itoa(int(filters.Sex))},
		"age_from": {strconv.Itoa(filters.AgeFrom)},
		"age_to":   {strconv.Itoa(filters.AgeTo)},
		"status":   {strconv.Itoa(int(filters.Status))},
		"sort":     {strconv.Itoa(int(filters.Sort))},
		// Fixed directory parameters: open profiles with photos only.
		"has_photo": {"1"},
		"is_closed": {"0"},
		"count":     {"1000"},
	}

	var payload struct {
		Items []personPayload `json:"items"`
	}
	if err := c.get(ctx, "/users/search", params, &payload); err != nil {
		return nil, err
	}

	people := make([]directory.Person, 0, len(payload.Items))
	for _, item := range payload.Items {
		people = append(people, directory.Person{
			ID:        item.ID,
			FirstName: item.FirstName,
			LastName:  item.LastName,
			Link:      item.Link,
			CityID:    item.CityID,
			Closed:    item.IsClosed,
			Verified:  item.Verified,
		})
	}
	return people, nil
}

func (c *Client) TopMedia(ctx context.Context, ownerID int64) ([]directory.Media, error) {
	var payload struct {
		Items []mediaPayload `json:"items"`
	}
	params := url.Values{"owner_id": {strconv.FormatInt(ownerID, 10)}}
	if err := c.get(ctx, "/media/get", params, &payload); err != nil {
		return nil, err
	}

	media := make([]directory.Media, 0, len(payload.Items))
	for _, item := range payload.Items {
		media = append(media, directory.Media{
			ID:         item.ID,
			OwnerID:    item.OwnerID,
			Popularity: item.Popularity,
		})
	}
	return media, nil
}

func (c *Client) LookupCity(ctx context.Context, countryID int64, title string) (location.CityResult, error) {
	params := url.Values{
		"country_id": {strconv.FormatInt(countryID, 10)},
		"q":          {title},
	}

	var payload struct {
		City   *cityPayload   `json:"city"`
		Region *regionPayload `json:"region"`
	}
	if err := c.get(ctx, "/locations/cities", params, &payload); err != nil {
		return location.CityResult{}, err
	}
	if payload.City == nil {
		return location.CityResult{}, location.ErrNotFound
	}

	result := location.CityResult{City: models.City{
		ID:          payload.City.ID,
		Title:       payload.City.Title,
		Area:        payload.City.Area,
		RegionTitle: payload.City.Region,
		RegionID:    payload.City.RegionID,
	}}
	if payload.Region != nil {
		result.Region = &models.Region{
			ID:        payload.Region.ID,
			Title:     payload.Region.Title,
			CountryID: payload.Region.CountryID,
		}
	}
	return result, nil
}

func (c *Client) LookupRegion(ctx context.Context, countryID int64, title string) (models.Region, error) {
	params := url.Values{
		"country_id": {strconv.FormatInt(countryID, 10)},
		"q":          {title},
	}

	var payload struct {
		Items []regionPayload `json:"items"`
	}
	if err := c.get(ctx, "/locations/regions", params, &payload); err != nil {
		return models.Region{}, err
	}
	if len(payload.Items) == 0 {
		return models.Region{}, location.ErrNotFound
	}

	first := payload.Items[0]
	return models.Region{ID: first.ID, Title: first.Title, CountryID: countryID}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return location.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory api returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode directory api response: %w", err)
	}
	return nil
}
