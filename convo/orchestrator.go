// Package convo is the conversation orchestrator: the single entry point a
// chat transport talks to. Per inbound message it tracks session state,
// branches on language mismatch, drives the provider fallback state machine
// and gates the final text. Turns for one session are serialized; sessions
// are independent.
package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/essket/pixorbi-bot/internal/langdetect"
	"github.com/essket/pixorbi-bot/internal/outputfmt"
	"github.com/essket/pixorbi-bot/llm"
	"github.com/essket/pixorbi-bot/persona"
	"github.com/essket/pixorbi-bot/session"
)

type EventKind string

const (
	EventBegin        EventKind = "begin"
	EventSetCharacter EventKind = "set_character"
	EventSetLanguage  EventKind = "set_language"
	EventReset        EventKind = "reset"
)

// Event is a lifecycle signal from the chat transport.
type Event struct {
	Kind  EventKind
	Value string
}

type Orchestrator struct {
	cfg        Config
	logger     *slog.Logger
	store      session.Store
	personas   *persona.Registry
	classifier *langdetect.Classifier
	primary    llm.Client
	secondary  llm.FallbackClient

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires an orchestrator. primary and secondary may each be nil when
// unconfigured, but not both: with no provider at all the process cannot
// serve and must refuse to start.
func New(cfg Config, logger *slog.Logger, store session.Store, personas *persona.Registry,
	classifier *langdetect.Classifier, primary llm.Client, secondary llm.FallbackClient) (*Orchestrator, error) {
	if primary == nil && secondary == nil {
		return nil, fmt.Errorf("no text-generation provider configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	if cfg.DefaultCharacter == "" {
		cfg.DefaultCharacter = personas.DefaultCharacter()
	}
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		personas:   personas,
		classifier: classifier,
		primary:    primary,
		secondary:  secondary,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// HandleMessage runs one full turn for an inbound message and always
// returns some reply text: a generated reply, a language reminder, a
// not-started prompt or the in-character placeholder. It never surfaces an
// internal error to the caller.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, text string) string {
	unlock := o.lockSession(sessionID)
	defer unlock()

	log := o.logger.With("session_id", sessionID, "turn_id", uuid.NewString())

	s := o.store.Get(sessionID)
	lang := s.Language
	if lang == "" {
		lang = o.cfg.DefaultLanguage
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fixedLine(listeningPrompts, lang)
	}
	if !s.Started {
		log.Info("turn_rejected_not_started")
		return fixedLine(notStartedPrompts, lang)
	}

	detected := o.classifier.Classify(text)
	if o.classifier.Known(detected) && string(detected) != s.Language {
		s.MismatchStreak++
		o.putUnlessReset(sessionID, s)
		log.Info("language_mismatch",
			"detected", string(detected),
			"target", s.Language,
			"streak", s.MismatchStreak,
		)
		reminder := fixedLine(languageReminders, s.Language)
		if s.MismatchStreak >= o.cfg.MismatchThreshold {
			return reminder + "\n" + fixedLine(languagePrompts, s.Language)
		}
		return reminder
	}
	if s.MismatchStreak != 0 {
		s.MismatchStreak = 0
		o.putUnlessReset(sessionID, s)
	}

	epoch := s.Epoch
	o.store.AppendHistory(sessionID, llm.RoleUser, text)

	reply, genErr := o.generate(ctx, log, s, text)

	// A reset while providers were running wins: leave the cleared
	// session alone and only deliver the reply.
	if o.store.Get(sessionID).Epoch != epoch {
		log.Info("turn_discarded_after_reset")
		return reply
	}
	o.store.AppendHistory(sessionID, llm.RoleAssistant, reply)

	if genErr != nil && o.cfg.Debug {
		return reply + "\n(debug: " + outputfmt.FormatErrorForDisplay(genErr, 200) + ")"
	}
	return reply
}

// HandleLifecycle applies one of the transport's lifecycle events and
// returns a confirmation line in the session's language.
func (o *Orchestrator) HandleLifecycle(ctx context.Context, sessionID string, ev Event) string {
	if ev.Kind == EventReset {
		// Reset deliberately skips the turn lock so it can interrupt an
		// in-flight generation; the epoch check discards that turn's writes.
		s := o.store.Get(sessionID)
		lang := s.Language
		if lang == "" {
			lang = o.cfg.DefaultLanguage
		}
		o.store.Reset(sessionID)
		o.logger.Info("session_reset", "session_id", sessionID)
		return fixedLine(resetConfirmations, lang)
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	s := o.store.Get(sessionID)
	switch ev.Kind {
	case EventBegin:
		s.Started = true
		if s.Character == "" {
			s.Character = o.cfg.DefaultCharacter
		}
		if s.Language == "" {
			s.Language = o.cfg.DefaultLanguage
		}
		o.store.Put(sessionID, s)
		o.logger.Info("session_begin", "session_id", sessionID, "character", s.Character, "language", s.Language)
		return greeting(s.Language, o.personas.DisplayName(s.Character))

	case EventSetCharacter:
		id := strings.ToLower(strings.TrimSpace(ev.Value))
		if !o.personas.Has(id) {
			// Unknown persona: keep the permissive default instead of
			// refusing.
			id = o.cfg.DefaultCharacter
		}
		s.Character = id
		// Picking a persona counts as beginning the session.
		s.Started = true
		if s.Language == "" {
			s.Language = o.cfg.DefaultLanguage
		}
		o.store.Put(sessionID, s)
		o.logger.Info("session_set_character", "session_id", sessionID, "character", id)
		return characterConfirmation(s.Language, o.personas.DisplayName(id))

	case EventSetLanguage:
		tag := langdetect.Tag(strings.ToLower(strings.TrimSpace(ev.Value)))
		if !o.classifier.Known(tag) {
			tag = langdetect.Tag(o.cfg.DefaultLanguage)
		}
		s.Language = string(tag)
		s.MismatchStreak = 0
		o.store.Put(sessionID, s)
		o.logger.Info("session_set_language", "session_id", sessionID, "language", s.Language)
		return languageConfirmation(s.Language)
	}

	o.logger.Warn("lifecycle_event_unknown", "session_id", sessionID, "kind", string(ev.Kind))
	lang := s.Language
	if lang == "" {
		lang = o.cfg.DefaultLanguage
	}
	return fixedLine(listeningPrompts, lang)
}

// putUnlessReset writes s back unless a reset bumped the epoch after s was
// read; a cleared session must not be resurrected by a stale write.
func (o *Orchestrator) putUnlessReset(sessionID string, s session.Session) {
	if o.store.Get(sessionID).Epoch != s.Epoch {
		return
	}
	o.store.Put(sessionID, s)
}

func (o *Orchestrator) lockSession(sessionID string) func() {
	o.mu.Lock()
	l, ok := o.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[sessionID] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}
