package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/directory"
	"github.com/pairup/matchmaker-bot/internal/models"
	"github.com/pairup/matchmaker-bot/internal/search"
	"github.com/pairup/matchmaker-bot/internal/store"
	"github.com/pairup/matchmaker-bot/internal/transport"
)

const (
	defaultAgeFrom = 18
	ageCeiling     = 100 // "no upper bound" answers map here
	topMediaCount  = 3

	msgDontUnderstand = "🤔 Don't understand... Use the buttons. 👇"
	msgSeenEveryone   = "🙃 Looks like you've already seen everyone. Try a new search! 🕵"
	msgStartOver      = "😉 Ok, let's start over."
)

// --- menu ---

func (m *Manager) handleMenu(ctx context.Context, sess *Session, text string) error {
	switch NormalizeInput(text) {
	case "hello":
		return m.handleGreetingPath(ctx, sess)

	case "new search":
		return m.startQuestionnaire(ctx, sess, true)

	case "latest results":
		queue, err := m.store.FetchMostRecentUnreviewed(ctx, sess.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if len(queue) == 0 {
			return m.send(ctx, sess, transport.Outgoing{Text: msgSeenEveryone, Buttons: m.menuButtons(sess)})
		}
		return m.startReview(ctx, sess, queue)

	case "all liked":
		return m.listDecided(ctx, sess, true)

	case "all disliked":
		return m.listDecided(ctx, sess, false)

	default:
		return m.send(ctx, sess, transport.Outgoing{Text: msgDontUnderstand, Buttons: m.menuButtons(sess)})
	}
}

// handleGreetingPath branches on the requester's own sex: when known,
// offer the opposite-sex shortcut; otherwise go straight to the full
// questionnaire.
func (m *Manager) handleGreetingPath(ctx context.Context, sess *Session) error {
	target := sess.Requester.Sex.Opposite()
	if target == models.SexAny {
		return m.startQuestionnaire(ctx, sess, true)
	}

	sess.Filters = m.defaultFilters(sess)
	sess.Filters.Sex = target
	sess.State = StateOpposite

	prompt := "Want to find a girlfriend?"
	if target == models.SexMale {
		prompt = "Want to find a boyfriend?"
	}
	return m.send(ctx, sess, transport.Outgoing{Text: prompt, Buttons: yesNoButtons()})
}

func (m *Manager) handleOpposite(ctx context.Context, sess *Session, text string) error {
	switch NormalizeInput(text) {
	case "yes":
		sess.State = StateSearchMode
		return m.send(ctx, sess, transport.Outgoing{
			Text:    "Which kind of search should we use? 👇",
			Buttons: [][]string{{"Standard", "Detailed"}, {"Cancel"}},
		})
	case "no":
		return m.startQuestionnaire(ctx, sess, true)
	case "cancel":
		return m.cancelToMenu(ctx, sess)
	default:
		return m.send(ctx, sess, transport.Outgoing{
			Text: `🤔 Don't understand... Just say "yes" or "no", or use the buttons. 👇`,
		})
	}
}

func (m *Manager) handleSearchMode(ctx context.Context, sess *Session, text string) error {
	switch NormalizeInput(text) {
	case "standard":
		if err := m.send(ctx, sess, transport.Outgoing{Text: "👍 Excellent choice!"}); err != nil {
			return err
		}
		return m.runSearch(ctx, sess)
	case "detailed":
		if err := m.send(ctx, sess, transport.Outgoing{Text: "👌 Ok! A few questions then."}); err != nil {
			return err
		}
		return m.startQuestionnaire(ctx, sess, false)
	case "cancel":
		return m.cancelToMenu(ctx, sess)
	default:
		return m.send(ctx, sess, transport.Outgoing{Text: msgDontUnderstand})
	}
}

// --- questionnaire ---

// startQuestionnaire begins the step-by-step filter collection. With
// askSex the sex question is included and the filters reset; without
// it the sex collected earlier is kept.
func (m *Manager) startQuestionnaire(ctx context.Context, sess *Session, askSex bool) error {
	if askSex {
		sess.Filters = m.defaultFilters(sess)
		sess.State = StateAskSex
		return m.send(ctx, sess, transport.Outgoing{
			Text:    "Who are we searching for?",
			Buttons: [][]string{{"Female", "Male"}, {"Any", "Cancel"}},
		})
	}
	return m.promptCity(ctx, sess)
}

func (m *Manager) handleAskSex(ctx context.Context, sess *Session, text string) error {
	var sex models.Sex
	switch NormalizeInput(text) {
	case "cancel":
		return m.cancelToMenu(ctx, sess)
	case "any":
		sex = models.SexAny
	case "female":
		sex = models.SexFemale
	case "male":
		sex = models.SexMale
	default:
		return m.send(ctx, sess, transport.Outgoing{Text: msgDontUnderstand})
	}

	sess.Filters.Sex = sex
	return m.promptCity(ctx, sess)
}

func (m *Manager) promptCity(ctx context.Context, sess *Session) error {
	sess.State = StateAskCity
	return m.send(ctx, sess, transport.Outgoing{
		Text: "Which city should we search in?\n\n" +
			"Foreign city names, like Amsterdam or Beijing, must be written out in full.",
		Buttons: cancelButton(),
	})
}

func (m *Manager) handleAskCity(ctx context.Context, sess *Session, text string) error {
	if NormalizeInput(text) == "cancel" {
		return m.cancelToMenu(ctx, sess)
	}

	title := NormalizeCityTitle(text)
	cities, err := m.store.CitiesByPrefix(ctx, title)
	if err != nil {
		return err
	}

	switch len(cities) {
	case 0:
		return m.send(ctx, sess, transport.Outgoing{
			Text: "😒 I don't know that city yet. Pick another one or try spelling it " +
				"differently. Spaces and hyphens matter a lot.",
		})
	case 1:
		sess.Filters.CityID = cities[0].ID
		return m.promptAgeFrom(ctx, sess)
	default:
		sess.CityChoices = cities
		sess.State = StateAskCityChoice
		if err := m.send(ctx, sess, transport.Outgoing{Text: "Need to narrow it down — which one do you mean?"}); err != nil {
			return err
		}
		return m.send(ctx, sess, transport.Outgoing{Text: m.cityChoiceList(ctx, cities)})
	}
}

func (m *Manager) handleAskCityChoice(ctx context.Context, sess *Session, text string) error {
	in := NormalizeInput(text)
	if in == "cancel" {
		return m.cancelToMenu(ctx, sess)
	}

	n, err := strconv.Atoi(in)
	if err != nil || n < 1 || n > len(sess.CityChoices) {
		return m.send(ctx, sess, transport.Outgoing{Text: "I need one of the numbers listed just above."})
	}

	sess.Filters.CityID = sess.CityChoices[n-1].ID
	sess.CityChoices = nil
	return m.promptAgeFrom(ctx, sess)
}

// cityChoiceList renders the 1-based disambiguation list annotated
// with region, area and country where the joins resolve.
func (m *Manager) cityChoiceList(ctx context.Context, cities []models.City) string {
	var sb strings.Builder
	for i, city := range cities {
		region, country := m.cityProvenance(ctx, city)
		if city.Area != "" {
			fmt.Fprintf(&sb, "%d - %s, %s, %s (%s)\n", i+1, city.Title, region, city.Area, country)
		} else {
			fmt.Fprintf(&sb, "%d - %s, %s (%s)\n", i+1, city.Title, region, country)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Manager) cityProvenance(ctx context.Context, city models.City) (string, string) {
	region, country := "unknown region", "unknown country"
	if city.RegionTitle != "" {
		region = city.RegionTitle
	}
	rg, err := m.store.RegionByID(ctx, city.RegionID)
	if err != nil {
		return region, country
	}
	region = rg.Title
	if co, err := m.store.CountryByID(ctx, rg.CountryID); err == nil {
		country = co.Title
	}
	return region, country
}

func (m *Manager) promptAgeFrom(ctx context.Context, sess *Session) error {
	sess.State = StateAskAgeFrom
	return m.send(ctx, sess, transport.Outgoing{
		Text:    "What's the minimum age? Digits only.",
		Buttons: cancelButton(),
	})
}

func (m *Manager) handleAskAgeFrom(ctx context.Context, sess *Session, text string) error {
	in := NormalizeInput(text)
	if in == "cancel" {
		return m.cancelToMenu(ctx, sess)
	}

	n, err := strconv.Atoi(in)
	if err != nil {
		return m.send(ctx, sess, transport.Outgoing{Text: "The minimum age, in DIGITS."})
	}

	sess.Filters.AgeFrom = abs(n)
	sess.State = StateAskAgeTo
	return m.send(ctx, sess, transport.Outgoing{
		Text:    "And the maximum age? Send 0 if it doesn't matter.",
		Buttons: cancelButton(),
	})
}

func (m *Manager) handleAskAgeTo(ctx context.Context, sess *Session, text string) error {
	in := NormalizeInput(text)
	if in == "cancel" {
		return m.cancelToMenu(ctx, sess)
	}

	n, err := strconv.Atoi(in)
	if err != nil {
		return m.send(ctx, sess, transport.Outgoing{
			Text: "The maximum age in DIGITS, or 0 if it doesn't matter.",
		})
	}

	if n == 0 {
		sess.Filters.AgeTo = ageCeiling
	} else {
		sess.Filters.AgeTo = abs(n)
	}

	sess.State = StateAskStatus
	return m.send(ctx, sess, transport.Outgoing{
		Text:    "Which relationship status are you interested in?",
		Buttons: statusButtons(),
	})
}

func (m *Manager) handleAskStatus(ctx context.Context, sess *Session, text string) error {
	in := NormalizeInput(text)
	if in == "cancel" {
		return m.cancelToMenu(ctx, sess)
	}

	for _, status := range models.AllStatuses() {
		if in == NormalizeInput(status.Label()) {
			sess.Filters.Status = status
			sess.State = StateAskSort
			return m.send(ctx, sess, transport.Outgoing{
				Text: "How should the results be sorted?",
				Buttons: [][]string{
					{models.SortByPopularity.Label(), models.SortByNewest.Label()},
					{"Cancel"},
				},
			})
		}
	}
	return m.send(ctx, sess, transport.Outgoing{Text: msgDontUnderstand})
}

func (m *Manager) handleAskSort(ctx context.Context, sess *Session, text string) error {
	in := NormalizeInput(text)
	switch in {
	case "cancel":
		return m.cancelToMenu(ctx, sess)
	case NormalizeInput(models.SortByPopularity.Label()):
		sess.Filters.Sort = models.SortByPopularity
	case NormalizeInput(models.SortByNewest.Label()):
		sess.Filters.Sort = models.SortByNewest
	default:
		return m.send(ctx, sess, transport.Outgoing{Text: msgDontUnderstand})
	}
	return m.runSearch(ctx, sess)
}

// --- search + review ---

func (m *Manager) runSearch(ctx context.Context, sess *Session) error {
	sess.State = StateMenu

	batch, queryID, err := m.engine.Run(ctx, sess.ID, sess.Filters)
	if errors.Is(err, search.ErrNoMatches) {
		return m.send(ctx, sess, transport.Outgoing{
			Text: "😒 Looks like nobody in that city matches those filters.\n" +
				"Try a detailed search or different terms.",
			Buttons: m.menuButtons(sess),
		})
	}
	if err != nil {
		return err
	}
	sess.HasHistory = true

	if batch == 0 {
		return m.send(ctx, sess, transport.Outgoing{
			Text:    "🙃 No new matches — you've already reviewed everyone who fits. Try different terms! 🕵",
			Buttons: m.menuButtons(sess),
		})
	}

	if err := m.send(ctx, sess, transport.Outgoing{
		Text: fmt.Sprintf("😃 We found %d matches!!!", batch),
	}); err != nil {
		return err
	}

	queue, err := m.store.FetchUnreviewed(ctx, sess.ID, queryID)
	if err != nil {
		return err
	}
	return m.startReview(ctx, sess, queue)
}

func (m *Manager) startReview(ctx context.Context, sess *Session, queue []models.Candidate) error {
	sess.Queue = queue
	sess.Pos = 0
	sess.State = StateReview
	return m.presentCandidate(ctx, sess)
}

func (m *Manager) presentCandidate(ctx context.Context, sess *Session) error {
	cand := &sess.Queue[sess.Pos]

	media, err := m.dir.TopMedia(ctx, cand.DirectoryID)
	if err != nil {
		m.log.Warn("media lookup failed",
			zap.Int64("directory_id", cand.DirectoryID), zap.Error(err))
		media = nil
	}

	var refs []string
	for _, item := range directory.TopN(media, topMediaCount) {
		refs = append(refs, item.Ref())
	}

	text := cand.DisplayName() + " " + cand.Link
	if len(refs) == 0 {
		text += "\nNo photos, but hang in there!"
	}

	if err := m.send(ctx, sess, transport.Outgoing{Text: text, Attachments: refs}); err != nil {
		return err
	}
	return m.send(ctx, sess, transport.Outgoing{
		Text:    "Like them?",
		Buttons: [][]string{{"Yes", "No"}, {"Cancel"}},
	})
}

func (m *Manager) handleReview(ctx context.Context, sess *Session, text string) error {
	in := NormalizeInput(text)
	switch in {
	case "yes", "no":
		cand := sess.Queue[sess.Pos]
		if err := m.store.MarkReviewed(ctx, cand.ID, in == "yes"); err != nil {
			return err
		}
		sess.Pos++
		if sess.Pos >= len(sess.Queue) {
			sess.Queue = nil
			sess.State = StateMenu
			return m.send(ctx, sess, transport.Outgoing{Text: msgSeenEveryone, Buttons: m.menuButtons(sess)})
		}
		return m.presentCandidate(ctx, sess)

	case "cancel":
		// Current and remaining candidates stay unreviewed.
		sess.Queue = nil
		sess.State = StateMenu
		return m.send(ctx, sess, transport.Outgoing{Text: "Come back soon! 🖖", Buttons: m.menuButtons(sess)})

	default:
		return m.send(ctx, sess, transport.Outgoing{
			Text:    msgDontUnderstand,
			Buttons: [][]string{{"Yes", "No"}, {"Cancel"}},
		})
	}
}

// --- history listings ---

func (m *Manager) listDecided(ctx context.Context, sess *Session, liked bool) error {
	cands, err := m.store.FetchByDecision(ctx, sess.ID, liked)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		return m.send(ctx, sess, transport.Outgoing{
			Text:    "Nobody in that list yet.",
			Buttons: m.menuButtons(sess),
		})
	}

	var sb strings.Builder
	for i, c := range cands {
		fmt.Fprintf(&sb, "%d. %s %s\n", i+1, c.DisplayName(), c.Link)
	}
	return m.send(ctx, sess, transport.Outgoing{
		Text:    strings.TrimRight(sb.String(), "\n"),
		Buttons: m.menuButtons(sess),
	})
}

// --- shared bits ---

// cancelToMenu aborts the whole questionnaire attempt, discarding the
// partially-collected answers.
func (m *Manager) cancelToMenu(ctx context.Context, sess *Session) error {
	sess.State = StateMenu
	sess.CityChoices = nil
	sess.Filters = models.SearchFilters{}
	return m.send(ctx, sess, transport.Outgoing{Text: msgStartOver, Buttons: m.menuButtons(sess)})
}

func (m *Manager) defaultFilters(sess *Session) models.SearchFilters {
	return models.SearchFilters{
		Sex:     models.SexAny,
		CityID:  sess.Requester.CityID,
		AgeFrom: defaultAgeFrom,
		AgeTo:   ageCeiling,
		Status:  models.StatusActivelySearching,
		Sort:    models.SortByPopularity,
	}
}

func (m *Manager) menuButtons(sess *Session) [][]string {
	if !sess.HasHistory {
		return shortMenuButtons()
	}
	return [][]string{
		{"Hello", "New search"},
		{"Latest results"},
		{"All liked", "All disliked"},
	}
}

func shortMenuButtons() [][]string {
	return [][]string{{"Hello", "New search"}}
}

func yesNoButtons() [][]string {
	return [][]string{{"Yes", "No"}, {"Cancel"}}
}

func cancelButton() [][]string {
	return [][]string{{"Cancel"}}
}

func statusButtons() [][]string {
	statuses := models.AllStatuses()
	rows := make([][]string, 0, len(statuses)/2+1)
	for i := 0; i+1 < len(statuses); i += 2 {
		rows = append(rows, []string{statuses[i].Label(), statuses[i+1].Label()})
	}
	return append(rows, []string{"Cancel"})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
