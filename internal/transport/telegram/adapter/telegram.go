// Package adapter connects the bot to Telegram through telebot.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	rtsup "satsalert/internal/runtime/supervisor"
	kit "satsalert/internal/transport"
	"satsalert/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot

	// out holds the current update channel; handlers forward to it.
	out    atomic.Pointer[chan<- kit.Update]
	outCtx atomic.Pointer[context.Context]

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	ignoredGroup atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		// Updates are handled one at a time so a user's messages keep their order.
		Synchronous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/start", func(c tele.Context) error {
		if up, ok := contactFromMessage(c.Message()); ok {
			a.forward(up)
		} else {
			a.ignoredGroup.Add(1)
		}
		return nil
	})
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := updateFromMessage(c.Message()); ok {
			a.forward(up)
		} else {
			a.ignoredGroup.Add(1)
		}
		return nil
	})
}

// contactFromMessage turns a private /start into a contact_connected update.
func contactFromMessage(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Chat == nil || m.Chat.Type != tele.ChatPrivate {
		return kit.Update{}, false
	}
	name := m.Chat.FirstName
	if m.Sender != nil {
		name = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
		if name == "" {
			name = m.Sender.Username
		}
	}
	return kit.Update{
		Kind:    kit.UpdateContactConnected,
		Contact: &kit.Contact{ID: m.Chat.ID, DisplayName: name},
	}, true
}

// updateFromMessage keeps text messages from direct chats only.
func updateFromMessage(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Chat == nil || m.Chat.Type != tele.ChatPrivate {
		return kit.Update{}, false
	}
	msg := &kit.Message{ID: m.ID, ChatID: m.Chat.ID, Text: m.Text}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return kit.Update{Kind: kit.UpdateMessage, Message: msg}, true
}

// forward blocks until the consumer takes the update, so a slow update loop
// slows polling instead of losing messages.
func (a *Adapter) forward(up kit.Update) {
	out := a.out.Load()
	ctxp := a.outCtx.Load()
	if out == nil || ctxp == nil {
		return
	}
	select {
	case *out <- up:
	case <-(*ctxp).Done():
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log))
	sup := a.sup
	sctx := sup.Context()
	a.outCtx.Store(&sctx)
	a.out.Store(&out)
	a.runMu.Unlock()

	sup.Go("telebot.stop_on_cancel", func(c context.Context) error {
		<-c.Done()
		a.bot.Stop()
		return nil
	})

	// telebot's Start blocks until Stop. If it returns on its own while the
	// adapter is still running, restart it.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("poller exited")
		}
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.out.Store(nil)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Int64("ignored_group_messages", int64(a.ignoredGroup.Load())))
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates is still long-polling.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop incomplete", logx.Err(err))
	}
	return nil
}

const telegramTextLimit = 4000

// splitTelegramText cuts s into chunks of at most limit runes, preferring
// newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid tiny chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// notReadyErrors are Telegram errors meaning the user cannot receive
// messages from the bot right now.
var notReadyErrors = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrChatNotFound,
	tele.ErrNotStartedByUser,
}

func classifySendError(err error) error {
	for _, e := range notReadyErrors {
		if errors.Is(err, e) {
			return fmt.Errorf("%w: %w", kit.ErrContactNotReady, err)
		}
	}
	return err
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
	}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, classifySendError(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func menuHash(cmds []kit.BotCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Telegram caps a command description at 256 characters.
const maxCommandDescription = 256

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// UpdateMenuCommands publishes the command menu (setMyCommands). It only
// calls Telegram when the list changed since the last success.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	sum := menuHash(cmds)
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		d = truncateRunes(d, maxCommandDescription)
		out = append(out, tele.Command{Text: strings.TrimPrefix(c.Command, "/"), Description: d})
		if len(out) >= 100 {
			break
		}
	}
	if err := a.bot.SetCommands(out); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}
