package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/essket/pixorbi-bot/convo"
	"github.com/essket/pixorbi-bot/internal/retryutil"
)

type Options struct {
	BotToken       string
	BaseURL        string
	PollTimeout    time.Duration
	TypingInterval time.Duration
	MaxConcurrency int
	AllowedChatIDs []int64
}

type job struct {
	ChatID int64
	Text   string
}

type chatWorker struct {
	jobs chan job
}

// Runtime polls the Bot API and drives the orchestrator. Each chat gets
// its own worker goroutine with a bounded queue, so turns within a chat
// run strictly in arrival order while chats proceed in parallel under a
// global concurrency cap.
type Runtime struct {
	api     *api
	orch    *convo.Orchestrator
	logger  *slog.Logger
	opts    Options
	allowed map[int64]bool
	sem     chan struct{}

	mu      sync.Mutex
	workers map[int64]*chatWorker
}

func NewRuntime(logger *slog.Logger, orch *convo.Orchestrator, opts Options) (*Runtime, error) {
	if strings.TrimSpace(opts.BotToken) == "" {
		return nil, fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or PIXORBI_TELEGRAM_BOT_TOKEN)")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	allowed := make(map[int64]bool, len(opts.AllowedChatIDs))
	for _, id := range opts.AllowedChatIDs {
		if id != 0 {
			allowed[id] = true
		}
	}
	return &Runtime{
		api:     newAPI(nil, opts.BaseURL, opts.BotToken),
		orch:    orch,
		logger:  logger,
		opts:    opts,
		allowed: allowed,
		sem:     make(chan struct{}, opts.MaxConcurrency),
		workers: make(map[int64]*chatWorker),
	}, nil
}

// Run polls until ctx is cancelled. In-flight turns are left to finish or
// time out on their own.
func (r *Runtime) Run(ctx context.Context) error {
	me, err := r.api.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	r.logger.Info("telegram_start",
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", r.opts.PollTimeout.String(),
		"max_concurrency", r.opts.MaxConcurrency,
	)

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, next, err := r.api.getUpdates(ctx, offset, r.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("telegram_get_updates_error", "error", err.Error())
			time.Sleep(1 * time.Second)
			continue
		}
		offset = next
		for _, u := range updates {
			r.dispatch(ctx, u)
		}
	}
}

func (r *Runtime) dispatch(ctx context.Context, u update) {
	if u.Message == nil || u.Message.Chat == nil {
		return
	}
	if u.Message.From != nil && u.Message.From.IsBot {
		return
	}
	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return
	}
	chatID := u.Message.Chat.ID
	if len(r.allowed) > 0 && !r.allowed[chatID] {
		r.logger.Info("telegram_chat_not_allowed", "chat_id", chatID)
		return
	}

	w := r.workerFor(ctx, chatID)
	select {
	case w.jobs <- job{ChatID: chatID, Text: text}:
	default:
		r.logger.Warn("telegram_queue_full", "chat_id", chatID)
	}
}

func (r *Runtime) workerFor(ctx context.Context, chatID int64) *chatWorker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[chatID]; ok {
		return w
	}
	w := &chatWorker{jobs: make(chan job, 16)}
	r.workers[chatID] = w

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case j, ok := <-w.jobs:
				if !ok {
					return
				}
				select {
				case r.sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				r.handle(ctx, j)
				<-r.sem
			}
		}
	}()
	return w
}

func (r *Runtime) handle(ctx context.Context, j job) {
	sessionID := fmt.Sprintf("tg:%d", j.ChatID)

	var reply string
	if ev, ok := parseLifecycleCommand(j.Text); ok {
		reply = r.orch.HandleLifecycle(ctx, sessionID, ev)
	} else if isCommand(j.Text) {
		reply = helpText
	} else {
		stop := startTypingTicker(ctx, r.api, j.ChatID, r.opts.TypingInterval)
		reply = r.orch.HandleMessage(ctx, sessionID, j.Text)
		stop()
	}

	if strings.TrimSpace(reply) == "" {
		return
	}
	if err := r.api.sendMessageChunked(ctx, j.ChatID, reply); err != nil {
		r.logger.Warn("telegram_send_error", "chat_id", j.ChatID, "error", err.Error())
		retryutil.AsyncRetry(r.logger, "telegram_send", 0, 0, func(retryCtx context.Context) error {
			return r.api.sendMessageChunked(retryCtx, j.ChatID, reply)
		})
	}
}

const helpText = "Команды: /start — начать, /reset — начать заново, " +
	"/character <имя> — выбрать персонажа, /language <ru|en> — выбрать язык."

func isCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// parseLifecycleCommand maps bot commands onto orchestrator lifecycle
// events. Commands may carry a @BotName suffix in group chats.
func parseLifecycleCommand(text string) (convo.Event, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return convo.Event{}, false
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/start", "/begin":
		return convo.Event{Kind: convo.EventBegin}, true
	case "/reset":
		return convo.Event{Kind: convo.EventReset}, true
	case "/character", "/persona":
		return convo.Event{Kind: convo.EventSetCharacter, Value: arg}, true
	case "/language", "/lang":
		return convo.Event{Kind: convo.EventSetLanguage, Value: arg}, true
	}
	return convo.Event{}, false
}
