package convo

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/essket/pixorbi-bot/internal/langdetect"
	"github.com/essket/pixorbi-bot/llm"
	"github.com/essket/pixorbi-bot/persona"
	"github.com/essket/pixorbi-bot/session"
)

type scriptedPrimary struct {
	mu    sync.Mutex
	calls []llm.Request
	fn    func(n int, req llm.Request) (llm.Result, error)
}

func (p *scriptedPrimary) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	p.mu.Unlock()
	return p.fn(n, req)
}

type scriptedSecondary struct {
	mu    sync.Mutex
	calls []llm.FallbackRequest
	fn    func(n int, req llm.FallbackRequest) (string, error)
}

func (s *scriptedSecondary) Generate(ctx context.Context, req llm.FallbackRequest) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	n := len(s.calls)
	s.mu.Unlock()
	return s.fn(n, req)
}

func transportFailure(provider string) error {
	return &llm.ProviderError{Provider: provider, Kind: llm.KindTransport, Retryable: true, Detail: "timeout"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrch(t *testing.T, cfg Config, primary llm.Client, secondary llm.FallbackClient) (*Orchestrator, *session.MemoryStore) {
	t.Helper()
	st := session.NewMemoryStore(0)
	o, err := New(cfg, discardLogger(), st, persona.Default(), langdetect.NewRussianEnglish(), primary, secondary)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, st
}

func beginSession(t *testing.T, o *Orchestrator, id string) {
	t.Helper()
	if got := o.HandleLifecycle(context.Background(), id, Event{Kind: EventBegin}); got == "" {
		t.Fatalf("begin returned empty reply")
	}
}

func TestNewRequiresAProvider(t *testing.T) {
	st := session.NewMemoryStore(0)
	if _, err := New(Config{}, discardLogger(), st, persona.Default(), langdetect.NewRussianEnglish(), nil, nil); err == nil {
		t.Fatalf("expected error with no providers")
	}
}

func TestCleanPrimarySuccess(t *testing.T) {
	const answer = "Я тебя ждала весь вечер, милый."
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: answer}, nil
	}}
	secondary := &scriptedSecondary{fn: func(n int, req llm.FallbackRequest) (string, error) {
		t.Errorf("secondary must not be called")
		return "", nil
	}}
	o, st := newOrch(t, Config{}, primary, secondary)
	beginSession(t, o, "tg:1")

	reply := o.HandleMessage(context.Background(), "tg:1", "привет, ты скучала?")
	if reply != answer {
		t.Errorf("reply = %q, want %q", reply, answer)
	}
	if len(primary.calls) != 1 {
		t.Errorf("primary calls = %d, want 1 (no retry)", len(primary.calls))
	}

	h := st.Get("tg:1").History
	if len(h) != 2 {
		t.Fatalf("history length = %d, want exactly one user+assistant pair", len(h))
	}
	if h[0].Role != llm.RoleUser || h[0].Content != "привет, ты скучала?" {
		t.Errorf("unexpected user entry %+v", h[0])
	}
	if h[1].Role != llm.RoleAssistant || h[1].Content != answer {
		t.Errorf("unexpected assistant entry %+v", h[1])
	}
}

func TestPrimaryRequestCarriesPersonaAndHistory(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "Конечно, помню."}, nil
	}}
	o, _ := newOrch(t, Config{}, primary, nil)
	beginSession(t, o, "tg:1")

	o.HandleMessage(context.Background(), "tg:1", "меня зовут Лёша")
	o.HandleMessage(context.Background(), "tg:1", "помнишь, как меня зовут?")

	req := primary.calls[1]
	if req.Messages[0].Role != llm.RoleSystem || !strings.Contains(req.Messages[0].Content, "Анна") {
		t.Errorf("first message must be the persona system prompt, got %+v", req.Messages[0])
	}
	if req.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want the configured initial %v", req.Temperature, DefaultTemperature)
	}
	var sawEarlierTurn bool
	for _, m := range req.Messages[1 : len(req.Messages)-1] {
		if m.Content == "меня зовут Лёша" {
			sawEarlierTurn = true
		}
	}
	if !sawEarlierTurn {
		t.Errorf("history not forwarded: %+v", req.Messages)
	}
	if last := req.Messages[len(req.Messages)-1]; last.Role != llm.RoleUser || last.Content != "помнишь, как меня зовут?" {
		t.Errorf("new user message must come last, got %+v", last)
	}
}

func TestDegenerateOutputRetriesThenSecondary(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "…!!!!!!!!!!!!!!!"}, nil
	}}
	secondary := &scriptedSecondary{fn: func(n int, req llm.FallbackRequest) (string, error) {
		return "Я здесь, рядом с тобой.", nil
	}}
	o, _ := newOrch(t, Config{}, primary, secondary)
	beginSession(t, o, "tg:1")

	reply := o.HandleMessage(context.Background(), "tg:1", "ты тут?")
	if reply != "Я здесь, рядом с тобой." {
		t.Errorf("reply = %q", reply)
	}
	if len(primary.calls) != 2 {
		t.Fatalf("primary calls = %d, want initial + one retry", len(primary.calls))
	}
	first, second := primary.calls[0].Temperature, primary.calls[1].Temperature
	if second >= first {
		t.Errorf("retry temperature %v not lowered from %v", second, first)
	}
	if math.Abs(first-second-DefaultRetryTemperatureStep) > 1e-9 {
		t.Errorf("retry step = %v, want %v", first-second, DefaultRetryTemperatureStep)
	}
	if len(secondary.calls) != 1 {
		t.Fatalf("secondary calls = %d, want 1", len(secondary.calls))
	}
	if sc := secondary.calls[0]; sc.Character != "anna" || sc.Language != "ru" || sc.Message != "ты тут?" {
		t.Errorf("unexpected secondary payload %+v", sc)
	}
}

func TestWrongScriptOutputFailsGate(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "I would rather answer in English, darling."}, nil
	}}
	secondary := &scriptedSecondary{fn: func(n int, req llm.FallbackRequest) (string, error) {
		return "Хорошо, что ты написал.", nil
	}}
	o, _ := newOrch(t, Config{}, primary, secondary)
	beginSession(t, o, "tg:1")

	reply := o.HandleMessage(context.Background(), "tg:1", "ответь по-русски")
	if reply != "Хорошо, что ты написал." {
		t.Errorf("wrong-script primary output must be rejected, got %q", reply)
	}
	if len(primary.calls) != 2 || len(secondary.calls) != 1 {
		t.Errorf("calls: primary=%d secondary=%d", len(primary.calls), len(secondary.calls))
	}
}

func TestPrimaryTransportErrorGoesStraightToSecondary(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{}, transportFailure("openai")
	}}
	secondary := &scriptedSecondary{fn: func(n int, req llm.FallbackRequest) (string, error) {
		return "Не переживай, я тут.", nil
	}}
	o, _ := newOrch(t, Config{}, primary, secondary)
	beginSession(t, o, "tg:1")

	reply := o.HandleMessage(context.Background(), "tg:1", "эй")
	if reply != "Не переживай, я тут." {
		t.Errorf("reply = %q", reply)
	}
	if len(primary.calls) != 1 {
		t.Errorf("transport errors must not be retried against primary, calls = %d", len(primary.calls))
	}
}

func TestLanguageMismatchStreak(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "Наконец-то по-русски, я рада."}, nil
	}}
	o, st := newOrch(t, Config{}, primary, nil)
	beginSession(t, o, "tg:1")

	reminder := languageReminders["ru"]
	prompt := languagePrompts["ru"]

	for turn := 1; turn <= 2; turn++ {
		reply := o.HandleMessage(context.Background(), "tg:1", "hello, do you speak english?")
		if reply != reminder {
			t.Errorf("turn %d: reply = %q, want plain reminder", turn, reply)
		}
	}
	reply := o.HandleMessage(context.Background(), "tg:1", "please switch to english")
	if !strings.Contains(reply, reminder) || !strings.Contains(reply, prompt) {
		t.Errorf("turn 3 must escalate with a language-selection prompt, got %q", reply)
	}
	if len(primary.calls) != 0 {
		t.Errorf("no provider call may happen on mismatch turns, got %d", len(primary.calls))
	}
	if got := st.Get("tg:1").MismatchStreak; got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
	if h := st.Get("tg:1").History; len(h) != 0 {
		t.Errorf("mismatch turns must not touch history: %+v", h)
	}

	// A Russian message resets the streak and generates normally.
	if reply := o.HandleMessage(context.Background(), "tg:1", "ладно, давай по-русски"); reply == reminder {
		t.Errorf("matching message should generate, got reminder")
	}
	if got := st.Get("tg:1").MismatchStreak; got != 0 {
		t.Errorf("streak after matching message = %d, want 0", got)
	}
}

func TestAmbiguousInputResetsStreakAndGenerates(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "Обнимаю тебя крепко."}, nil
	}}
	o, st := newOrch(t, Config{}, primary, nil)
	beginSession(t, o, "tg:1")

	o.HandleMessage(context.Background(), "tg:1", "english text")
	if got := st.Get("tg:1").MismatchStreak; got != 1 {
		t.Fatalf("streak = %d, want 1", got)
	}
	reply := o.HandleMessage(context.Background(), "tg:1", "🙂🙂 !!!")
	if reply != "Обнимаю тебя крепко." {
		t.Errorf("ambiguous input should generate, got %q", reply)
	}
	if got := st.Get("tg:1").MismatchStreak; got != 0 {
		t.Errorf("streak after ambiguous input = %d, want 0", got)
	}
}

func TestBothProvidersFailDegradesInCharacter(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{}, transportFailure("openai")
	}}
	secondary := &scriptedSecondary{fn: func(n int, req llm.FallbackRequest) (string, error) {
		return "", transportFailure("runpod")
	}}
	o, st := newOrch(t, Config{}, primary, secondary)
	beginSession(t, o, "tg:1")

	reply := o.HandleMessage(context.Background(), "tg:1", "ау?")
	want := persona.Default().Placeholder("anna", "ru")
	if reply != want {
		t.Errorf("reply = %q, want placeholder %q", reply, want)
	}

	h := st.Get("tg:1").History
	if len(h) != 2 || h[1].Role != llm.RoleAssistant || h[1].Content != want {
		t.Errorf("placeholder must still be recorded as the assistant turn: %+v", h)
	}
}

func TestDebugModeAppendsDetail(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{}, transportFailure("openai")
	}}
	o, _ := newOrch(t, Config{Debug: true}, primary, nil)
	beginSession(t, o, "tg:1")

	reply := o.HandleMessage(context.Background(), "tg:1", "ау?")
	if !strings.Contains(reply, "(debug:") {
		t.Errorf("debug detail missing: %q", reply)
	}
}

func TestNotStartedSessionIsRejected(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		t.Errorf("provider must not be called before the session starts")
		return llm.Result{}, nil
	}}
	o, _ := newOrch(t, Config{}, primary, nil)

	reply := o.HandleMessage(context.Background(), "tg:1", "привет")
	if reply != notStartedPrompts["ru"] {
		t.Errorf("reply = %q, want not-started prompt", reply)
	}
}

func TestResetLifecycle(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "Хорошо, я запомнила."}, nil
	}}
	o, st := newOrch(t, Config{}, primary, nil)
	beginSession(t, o, "tg:1")
	o.HandleMessage(context.Background(), "tg:1", "запомни: я люблю осень")

	o.HandleLifecycle(context.Background(), "tg:1", Event{Kind: EventReset})

	s := st.Get("tg:1")
	if s.Started || s.Character != "" || s.Language != "" || len(s.History) != 0 {
		t.Errorf("reset left state behind: %+v", s)
	}

	calls := len(primary.calls)
	reply := o.HandleMessage(context.Background(), "tg:1", "ты тут?")
	if reply != notStartedPrompts["ru"] {
		t.Errorf("post-reset message must be rejected, got %q", reply)
	}
	if len(primary.calls) != calls {
		t.Errorf("post-reset message must not call providers")
	}
}

func TestResetDuringTurnDiscardsHistoryWrite(t *testing.T) {
	var o *Orchestrator
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		// A reset arrives while the provider call is in flight.
		o.HandleLifecycle(context.Background(), "tg:1", Event{Kind: EventReset})
		return llm.Result{Text: "Ответ, который опоздал."}, nil
	}}
	var st *session.MemoryStore
	o, st = newOrch(t, Config{}, primary, nil)
	beginSession(t, o, "tg:1")

	reply := o.HandleMessage(context.Background(), "tg:1", "привет")
	if reply != "Ответ, который опоздал." {
		t.Errorf("the in-flight reply is still delivered, got %q", reply)
	}
	if h := st.Get("tg:1").History; len(h) != 0 {
		t.Errorf("writes from the interrupted turn must be discarded: %+v", h)
	}
}

// resetOnGetStore clears the session immediately after a read once armed,
// standing in for a reset that lands while a turn is underway.
type resetOnGetStore struct {
	*session.MemoryStore
	armed bool
}

func (s *resetOnGetStore) Get(id string) session.Session {
	out := s.MemoryStore.Get(id)
	if s.armed {
		s.armed = false
		s.MemoryStore.Reset(id)
	}
	return out
}

func TestResetDuringMismatchTurnIsNotOverwritten(t *testing.T) {
	st := &resetOnGetStore{MemoryStore: session.NewMemoryStore(0)}
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		t.Errorf("mismatch turns must not call providers")
		return llm.Result{}, nil
	}}
	o, err := New(Config{}, discardLogger(), st, persona.Default(), langdetect.NewRussianEnglish(), primary, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	beginSession(t, o, "tg:1")

	st.armed = true
	reply := o.HandleMessage(context.Background(), "tg:1", "hello, do you speak english?")
	if reply != languageReminders["ru"] {
		t.Errorf("reply = %q, want plain reminder", reply)
	}

	s := st.MemoryStore.Get("tg:1")
	if s.Started || s.Character != "" || s.MismatchStreak != 0 || len(s.History) != 0 {
		t.Errorf("stale mismatch write resurrected the cleared session: %+v", s)
	}
}

func TestSetCharacterAndLanguage(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "ok then"}, nil
	}}
	o, st := newOrch(t, Config{}, primary, nil)

	// Picking a persona starts the session without an explicit begin.
	o.HandleLifecycle(context.Background(), "tg:1", Event{Kind: EventSetCharacter, Value: "mira"})
	s := st.Get("tg:1")
	if !s.Started || s.Character != "mira" {
		t.Errorf("persona selection should start the session: %+v", s)
	}

	// Unknown persona falls back to the default.
	o.HandleLifecycle(context.Background(), "tg:1", Event{Kind: EventSetCharacter, Value: "dracula"})
	if got := st.Get("tg:1").Character; got != "anna" {
		t.Errorf("unknown persona should fall back to default, got %q", got)
	}

	o.HandleLifecycle(context.Background(), "tg:1", Event{Kind: EventSetLanguage, Value: "en"})
	if got := st.Get("tg:1").Language; got != "en" {
		t.Errorf("language not set: %q", got)
	}

	// Unknown language falls back to the default.
	o.HandleLifecycle(context.Background(), "tg:1", Event{Kind: EventSetLanguage, Value: "klingon"})
	if got := st.Get("tg:1").Language; got != "ru" {
		t.Errorf("unknown language should fall back to default, got %q", got)
	}
}

func TestHistoryStaysBounded(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "Понимаю тебя."}, nil
	}}
	o, st := newOrch(t, Config{}, primary, nil)
	beginSession(t, o, "tg:1")

	for i := 0; i < 40; i++ {
		o.HandleMessage(context.Background(), "tg:1", "расскажи ещё")
	}
	if h := st.Get("tg:1").History; len(h) > 2*session.DefaultMaxPairs {
		t.Errorf("history length %d exceeds bound %d", len(h), 2*session.DefaultMaxPairs)
	}
}

func TestConcurrentSessionsDoNotInterleave(t *testing.T) {
	primary := &scriptedPrimary{fn: func(n int, req llm.Request) (llm.Result, error) {
		return llm.Result{Text: "Привет-привет."}, nil
	}}
	o, st := newOrch(t, Config{}, primary, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := "tg:" + strings.Repeat("x", i+1)
		beginSession(t, o, id)
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				o.HandleMessage(context.Background(), id, "привет")
			}
		}(id)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		id := "tg:" + strings.Repeat("x", i+1)
		h := st.Get(id).History
		if len(h) != 10 {
			t.Errorf("session %s history = %d entries, want 10", id, len(h))
		}
		for k, m := range h {
			wantRole := llm.RoleUser
			if k%2 == 1 {
				wantRole = llm.RoleAssistant
			}
			if m.Role != wantRole {
				t.Fatalf("session %s history interleaved at %d: %+v", id, k, h)
			}
		}
	}
}
