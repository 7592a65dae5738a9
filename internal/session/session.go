// Package session drives the per-requester conversation: greeting,
// menu, preference questionnaire, search invocation and the
// one-at-a-time review loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/directory"
	"github.com/pairup/matchmaker-bot/internal/location"
	"github.com/pairup/matchmaker-bot/internal/models"
	"github.com/pairup/matchmaker-bot/internal/search"
	"github.com/pairup/matchmaker-bot/internal/store"
	"github.com/pairup/matchmaker-bot/internal/transport"
)

// State is the dialog position of one session. Inbound messages are
// routed by the current state; cancellation is accepted in every state
// past the menu and returns there.
type State int

const (
	StateIdle State = iota
	StateMenu
	StateOpposite   // yes/no "want the opposite sex?" shortcut
	StateSearchMode // standard vs detailed
	StateAskSex
	StateAskCity
	StateAskCityChoice // city disambiguation by ordinal
	StateAskAgeFrom
	StateAskAgeTo
	StateAskStatus
	StateAskSort
	StateReview
)

// Session is the in-memory dialog state of one requester. It is not
// persisted: a restart loses questionnaire progress but no committed
// decision.
type Session struct {
	ID          int64
	Requester   *models.Requester
	State       State
	Filters     models.SearchFilters
	CityChoices []models.City
	Queue       []models.Candidate
	Pos         int
	Welcomed    bool
	IsNew       bool
	HasHistory  bool
	LastActive  time.Time
}

// Config tunes the session layer.
type Config struct {
	DefaultCountryID int64
	DefaultCityID    int64

	// IdleTimeout expires an abandoned session back to idle; zero
	// disables expiry.
	IdleTimeout time.Duration
}

// Manager owns all sessions and routes inbound messages through them.
// The dispatch loop is single-threaded, so sessions need no locking.
type Manager struct {
	store    *store.Store
	engine   *search.Engine
	dir      directory.Client
	resolver *location.Resolver
	tr       transport.Transport
	log      *zap.Logger
	cfg      Config

	sessions map[int64]*Session
}

func NewManager(st *store.Store, engine *search.Engine, dir directory.Client,
	resolver *location.Resolver, tr transport.Transport, logger *zap.Logger, cfg Config) *Manager {
	return &Manager{
		store:    st,
		engine:   engine,
		dir:      dir,
		resolver: resolver,
		tr:       tr,
		log:      logger,
		cfg:      cfg,
		sessions: make(map[int64]*Session),
	}
}

// Run consumes the transport until ctx is cancelled. No inbound
// message ever terminates the loop; per-requester failures end in an
// apology and a stable menu state.
func (m *Manager) Run(ctx context.Context) error {
	for {
		in, err := m.tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Error("receive failed", zap.Error(err))
			continue
		}
		m.Handle(ctx, in)
	}
}

// Handle advances one requester's session by one inbound message.
func (m *Manager) Handle(ctx context.Context, in transport.Incoming) {
	if !in.Addressed {
		return
	}

	sess := m.sessionFor(in.RequesterID)
	if err := m.handle(ctx, sess, in.Text); err != nil {
		m.log.Error("turn failed", zap.Int64("requester_id", in.RequesterID), zap.Error(err))
		m.apologize(ctx, sess)
	}
	sess.LastActive = time.Now()
}

func (m *Manager) sessionFor(id int64) *Session {
	sess := m.sessions[id]
	if sess == nil {
		sess = &Session{ID: id}
		m.sessions[id] = sess
		return sess
	}
	if m.cfg.IdleTimeout > 0 && time.Since(sess.LastActive) > m.cfg.IdleTimeout {
		// Abandoned: drop partial progress, keep the loaded profile.
		*sess = Session{ID: id, Requester: sess.Requester, HasHistory: sess.HasHistory}
	}
	return sess
}

func (m *Manager) handle(ctx context.Context, sess *Session, text string) error {
	if sess.Requester == nil {
		if err := m.ensureRequester(ctx, sess); err != nil {
			return err
		}
	}
	if !sess.Welcomed {
		if err := m.greet(ctx, sess); err != nil {
			return err
		}
		sess.Welcomed = true
		sess.State = StateMenu
		// The message that woke the session still counts as a menu answer.
	}

	switch sess.State {
	case StateMenu:
		return m.handleMenu(ctx, sess, text)
	case StateOpposite:
		return m.handleOpposite(ctx, sess, text)
	case StateSearchMode:
		return m.handleSearchMode(ctx, sess, text)
	case StateAskSex:
		return m.handleAskSex(ctx, sess, text)
	case StateAskCity:
		return m.handleAskCity(ctx, sess, text)
	case StateAskCityChoice:
		return m.handleAskCityChoice(ctx, sess, text)
	case StateAskAgeFrom:
		return m.handleAskAgeFrom(ctx, sess, text)
	case StateAskAgeTo:
		return m.handleAskAgeTo(ctx, sess, text)
	case StateAskStatus:
		return m.handleAskStatus(ctx, sess, text)
	case StateAskSort:
		return m.handleAskSort(ctx, sess, text)
	case StateReview:
		return m.handleReview(ctx, sess, text)
	default:
		sess.State = StateMenu
		return m.handleMenu(ctx, sess, text)
	}
}

// ensureRequester loads or creates the requester record, resolving the
// home city through the location hierarchy. An unresolvable home city
// falls back to the configured default rather than blocking the
// conversation.
func (m *Manager) ensureRequester(ctx context.Context, sess *Session) error {
	stored, err := m.store.GetRequester(ctx, sess.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	prof, perr := m.dir.Profile(ctx, sess.ID)
	if perr != nil {
		if stored != nil {
			sess.Requester = stored
			return nil
		}
		return fmt.Errorf("failed to load requester profile: %w", perr)
	}

	countryID := prof.CountryID
	if countryID == 0 {
		countryID = m.cfg.DefaultCountryID
	}

	cityID := m.cfg.DefaultCityID
	if prof.CityID != 0 {
		city, err := m.resolver.EnsureCity(ctx, countryID, prof.CityID, prof.CityTitle)
		switch {
		case err == nil:
			cityID = city.ID
		case errors.Is(err, location.ErrNotFound):
			m.log.Info("home city unresolved, using default",
				zap.Int64("requester_id", sess.ID), zap.String("city", prof.CityTitle))
		default:
			m.log.Warn("home city resolution failed",
				zap.Int64("requester_id", sess.ID), zap.Error(err))
		}
	}

	req := &models.Requester{
		ID:        prof.ID,
		FirstName: prof.FirstName,
		LastName:  prof.LastName,
		Sex:       prof.Sex,
		CityID:    cityID,
		Link:      prof.Link,
	}

	if stored == nil {
		if err := m.store.InsertRequester(ctx, req); err != nil {
			return err
		}
		sess.IsNew = true
	} else if stored.CityID != cityID {
		if err := m.store.UpdateRequesterCity(ctx, sess.ID, cityID); err != nil {
			return err
		}
	}

	sess.Requester = req
	return nil
}

func (m *Manager) greet(ctx context.Context, sess *Session) error {
	name := capitalize(sess.Requester.FirstName)

	if sess.IsNew {
		return m.send(ctx, sess, transport.Outgoing{
			Text:    "😊 Hi, " + name + "!",
			Buttons: shortMenuButtons(),
		})
	}

	hasHistory, err := m.store.HasQueries(ctx, sess.ID)
	if err != nil {
		return err
	}
	sess.HasHistory = hasHistory

	return m.send(ctx, sess, transport.Outgoing{
		Text:    "😊 Hi, " + name + "! Long time no see!",
		Buttons: m.menuButtons(sess),
	})
}

func (m *Manager) send(ctx context.Context, sess *Session, out transport.Outgoing) error {
	if err := m.tr.Send(ctx, sess.ID, out); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// apologize is the terminal handler for a failed turn: best effort
// message, then a stable menu state.
func (m *Manager) apologize(ctx context.Context, sess *Session) {
	sess.State = StateMenu
	sess.Queue = nil
	sess.CityChoices = nil
	err := m.send(ctx, sess, transport.Outgoing{
		Text:    "😓 Something went wrong on my side. Let's go back to the menu and try again.",
		Buttons: m.menuButtons(sess),
	})
	if err != nil {
		m.log.Error("apology failed", zap.Int64("requester_id", sess.ID), zap.Error(err))
	}
}
