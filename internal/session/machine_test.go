package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/directory"
	"github.com/pairup/matchmaker-bot/internal/location"
	"github.com/pairup/matchmaker-bot/internal/models"
	"github.com/pairup/matchmaker-bot/internal/search"
	"github.com/pairup/matchmaker-bot/internal/store"
	"github.com/pairup/matchmaker-bot/internal/transport"
)

const testRequesterID = int64(42)

type fakeTransport struct {
	sent []transport.Outgoing
}

func (f *fakeTransport) Send(ctx context.Context, requesterID int64, out transport.Outgoing) error {
	f.sent = append(f.sent, out)
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (transport.Incoming, error) {
	<-ctx.Done()
	return transport.Incoming{}, ctx.Err()
}

type fakeDir struct {
	profile    directory.Profile
	people     []directory.Person
	media      []directory.Media
	lastFilter models.SearchFilters
}

func (f *fakeDir) Profile(ctx context.Context, id int64) (*directory.Profile, error) {
	prof := f.profile
	prof.ID = id
	return &prof, nil
}

func (f *fakeDir) SearchPeople(ctx context.Context, filters models.SearchFilters) ([]directory.Person, error) {
	f.lastFilter = filters
	return f.people, nil
}

func (f *fakeDir) TopMedia(ctx context.Context, ownerID int64) ([]directory.Media, error) {
	media := make([]directory.Media, len(f.media))
	copy(media, f.media)
	for i := range media {
		media[i].OwnerID = ownerID
	}
	return media, nil
}

type fakeLocService struct{}

func (fakeLocService) LookupCity(ctx context.Context, countryID int64, title string) (location.CityResult, error) {
	return location.CityResult{}, location.ErrNotFound
}

func (fakeLocService) LookupRegion(ctx context.Context, countryID int64, title string) (models.Region, error) {
	return models.Region{}, location.ErrNotFound
}

type harness struct {
	t   *testing.T
	mgr *Manager
	st  *store.Store
	tr  *fakeTransport
	dir *fakeDir
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.InsertRegion(ctx, &models.Region{ID: 9, Title: "North Holland", CountryID: 1}))
	require.NoError(t, st.InsertCity(ctx, &models.City{ID: 1, Title: "Amsterdam", RegionTitle: "North Holland", RegionID: 9}))

	dir := &fakeDir{
		profile: directory.Profile{FirstName: "sam", Sex: models.SexMale, Link: "https://example.org/sam"},
		people: []directory.Person{
			{ID: 1001, FirstName: "Anna", Link: "https://example.org/anna"},
			{ID: 1002, FirstName: "Bea", Link: "https://example.org/bea"},
			{ID: 1003, FirstName: "Cleo", Link: "https://example.org/cleo"},
		},
	}

	tr := &fakeTransport{}
	engine := search.New(dir, st, zap.NewNop())
	resolver := location.NewResolver(fakeLocService{}, st, zap.NewNop())
	mgr := NewManager(st, engine, dir, resolver, tr, zap.NewNop(), Config{
		DefaultCountryID: 1,
		DefaultCityID:    1,
	})

	return &harness{t: t, mgr: mgr, st: st, tr: tr, dir: dir}
}

func (h *harness) say(text string) {
	h.t.Helper()
	h.mgr.Handle(context.Background(), transport.Incoming{
		RequesterID: testRequesterID,
		Text:        text,
		Addressed:   true,
	})
}

func (h *harness) lastText() string {
	h.t.Helper()
	require.NotEmpty(h.t, h.tr.sent)
	return h.tr.sent[len(h.tr.sent)-1].Text
}

// reachReview drives a full detailed questionnaire until the first
// candidate is on screen.
func (h *harness) reachReview() {
	h.t.Helper()
	h.say("hi")
	h.say("new search")
	h.say("Any")
	h.say("amsterdam")
	h.say("25")
	h.say("0")
	h.say("Actively searching")
	h.say("By popularity")
	require.Equal(h.t, "Like them?", h.lastText())
}

func TestGreetingAndMenuReprompt(t *testing.T) {
	h := newHarness(t)

	h.say("hi")
	require.GreaterOrEqual(t, len(h.tr.sent), 2)
	assert.Contains(t, h.tr.sent[0].Text, "Hi, Sam!")
	assert.Equal(t, msgDontUnderstand, h.lastText())

	// Unknown input keeps the session in the menu.
	h.say("what do I do")
	assert.Equal(t, msgDontUnderstand, h.lastText())
}

func TestCancelDuringAgePromptCreatesNoQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.say("hi")
	h.say("new search")
	h.say("Female")
	h.say("amsterdam")
	assert.Contains(t, h.lastText(), "minimum age")

	h.say("Cancel")
	assert.Equal(t, msgStartOver, h.lastText())

	has, err := h.st.HasQueries(ctx, testRequesterID)
	require.NoError(t, err)
	assert.False(t, has, "an aborted questionnaire must not persist a query")
}

func TestAgeValidationAndCeiling(t *testing.T) {
	h := newHarness(t)

	h.say("hi")
	h.say("new search")
	h.say("Any")
	h.say("amsterdam")

	h.say("twenty")
	assert.Contains(t, h.lastText(), "DIGITS")

	// A stray minus sign does not flip the age negative.
	h.say("-25")
	assert.Contains(t, h.lastText(), "maximum age")

	h.say("0")
	h.say("Actively searching")
	h.say("By popularity")

	assert.Equal(t, 25, h.dir.lastFilter.AgeFrom)
	assert.Equal(t, 100, h.dir.lastFilter.AgeTo, "an age-to of 0 maps to the ceiling")
	assert.Equal(t, int64(1), h.dir.lastFilter.CityID)
}

func TestRejectAllCandidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.reachReview()
	h.say("no")
	h.say("no")
	h.say("no")
	assert.Equal(t, msgSeenEveryone, h.lastText())

	disliked, err := h.st.FetchByDecision(ctx, testRequesterID, false)
	require.NoError(t, err)
	assert.Len(t, disliked, 3)

	liked, err := h.st.FetchByDecision(ctx, testRequesterID, true)
	require.NoError(t, err)
	assert.Empty(t, liked)
}

func TestCancelMidReviewLeavesRemainderUnreviewed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.reachReview()
	h.say("yes")
	h.say("Cancel")
	assert.Contains(t, h.lastText(), "Come back soon")

	queryID, err := h.st.LatestQueryID(ctx, testRequesterID)
	require.NoError(t, err)

	remaining, err := h.st.FetchUnreviewed(ctx, testRequesterID, queryID)
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "item 2 and 3 stay unreviewed")

	liked, err := h.st.FetchByDecision(ctx, testRequesterID, true)
	require.NoError(t, err)
	assert.Len(t, liked, 1)

	// The remainder is reachable again through the menu.
	h.say("Latest results")
	assert.Equal(t, "Like them?", h.lastText())
}

func TestUnknownReviewInputRepromptsSameCandidate(t *testing.T) {
	h := newHarness(t)

	h.reachReview()
	h.say("maybe")
	assert.Equal(t, msgDontUnderstand, h.lastText())

	// The same first candidate is still pending: answering now reviews
	// Anna, not Bea.
	h.say("no")
	texts := make([]string, 0, len(h.tr.sent))
	for _, out := range h.tr.sent {
		texts = append(texts, out.Text)
	}
	assert.Contains(t, strings.Join(texts, "\n"), "Bea")
}

func TestOppositeSexShortcutStandardSearch(t *testing.T) {
	h := newHarness(t)

	h.say("hi")
	h.say("Hello")
	assert.Contains(t, h.lastText(), "girlfriend")

	h.say("yes")
	assert.Contains(t, h.lastText(), "kind of search")

	h.say("standard")
	assert.Equal(t, models.SexFemale, h.dir.lastFilter.Sex)
	assert.Equal(t, 18, h.dir.lastFilter.AgeFrom)
	assert.Equal(t, "Like them?", h.lastText())
}

func TestCityDisambiguationByOrdinal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.st.InsertCity(ctx, &models.City{ID: 21, Title: "Springfield", RegionTitle: "Illinois"}))
	require.NoError(t, h.st.InsertCity(ctx, &models.City{ID: 22, Title: "Springfield", RegionTitle: "Missouri"}))

	h.say("hi")
	h.say("new search")
	h.say("Any")
	h.say("springfield")
	list := h.lastText()
	assert.Contains(t, list, "1 - Springfield")
	assert.Contains(t, list, "2 - Springfield")
	assert.Contains(t, list, "unknown country")

	h.say("9")
	assert.Contains(t, h.lastText(), "numbers listed")

	h.say("2")
	assert.Contains(t, h.lastText(), "minimum age")

	h.say("30")
	h.say("40")
	h.say("Single")
	h.say("Newest first")
	assert.Equal(t, int64(22), h.dir.lastFilter.CityID)
	assert.Equal(t, models.StatusSingle, h.dir.lastFilter.Status)
	assert.Equal(t, models.SortByNewest, h.dir.lastFilter.Sort)
}

func TestUnknownCityRepromptsInPlace(t *testing.T) {
	h := newHarness(t)

	h.say("hi")
	h.say("new search")
	h.say("Any")
	h.say("atlantis")
	assert.Contains(t, h.lastText(), "don't know that city")

	// Still at the city step.
	h.say("amsterdam")
	assert.Contains(t, h.lastText(), "minimum age")
}

func TestHistoryListings(t *testing.T) {
	h := newHarness(t)

	h.reachReview()
	h.say("yes")
	h.say("no")
	h.say("no")

	h.say("All liked")
	assert.Contains(t, h.lastText(), "1. Anna")

	h.say("All disliked")
	listing := h.lastText()
	assert.Contains(t, listing, "1. Bea")
	assert.Contains(t, listing, "2. Cleo")
}

func TestCandidatePresentationWithMedia(t *testing.T) {
	h := newHarness(t)
	h.dir.media = []directory.Media{
		{ID: 1, Popularity: 5},
		{ID: 2, Popularity: 50},
		{ID: 3, Popularity: 20},
		{ID: 4, Popularity: 40},
	}

	h.reachReview()

	var card *transport.Outgoing
	for i := range h.tr.sent {
		if len(h.tr.sent[i].Attachments) > 0 {
			card = &h.tr.sent[i]
			break
		}
	}
	require.NotNil(t, card, "the candidate card should carry attachments")
	assert.Contains(t, card.Text, "Anna")
	require.Len(t, card.Attachments, 3)
	assert.Equal(t, "photo1001_2", card.Attachments[0], "most popular media first")
}

func TestCandidatePresentationWithoutMedia(t *testing.T) {
	h := newHarness(t)

	h.reachReview()
	for _, out := range h.tr.sent {
		if strings.Contains(out.Text, "Anna") {
			assert.Contains(t, out.Text, "No photos")
			return
		}
	}
	t.Fatal("candidate card was never sent")
}
