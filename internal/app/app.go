// Package app wires the bot: config, logging, storage, the Telegram
// adapter, the conversation loop and the scheduled dispatch and expiry jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"satsalert/internal/config"
	"satsalert/internal/conversation"
	"satsalert/internal/dispatch"
	"satsalert/internal/eventbus"
	"satsalert/internal/refdata"
	"satsalert/internal/router"
	"satsalert/internal/runtime/supervisor"
	"satsalert/internal/storage"
	"satsalert/internal/sweeper"
	"satsalert/internal/task/scheduler"
	kit "satsalert/internal/transport"
	telegram "satsalert/internal/transport/telegram/adapter"
	"satsalert/pkg/logx"
)

const (
	jobPoll  = "notifications.poll"
	jobSweep = "alerts.expire"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	sessions *conversation.Registry
	engine   *conversation.Engine
	router   *router.Router
	disp     *dispatch.Service
	sweep    *sweeper.Sweeper
	sched    *scheduler.Service

	updates chan kit.Update
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, fmt.Errorf("telegram.token is empty (set it in %s or %s)", cfgPath, config.EnvTelegramToken)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, defaultTelegramPollTO)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, logx.NewConsole("info"))
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg, ad)
}

func build(cfgm *config.ConfigManager, cfg *config.Config, ad kit.Adapter) (*App, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	bus := eventbus.New()

	sc, _ := mapStorageConfig(cfg)
	store, err := openStore(sc, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	conv, _ := mapConversation(cfg)
	sessions := conversation.NewRegistry(conv.idle)
	checkQuotes(conv.quotesFile, log)
	eng := conversation.New(conversation.Deps{
		Store:      store,
		Sender:     ad,
		Sessions:   sessions,
		Currencies: loadCurrencies(conv.currencyFile, log),
		Quotes:     refdata.QuoteFile{Path: conv.quotesFile},
		Bus:        bus,
		Log:        log,
	})
	rt := router.New(eng, log)
	rt.SetTurnTimeout(conv.turn)

	dc, _ := mapDispatchConfig(cfg)
	disp := dispatch.New(dc, store, ad, log, bus)
	swc, _ := mapSweeperConfig(cfg, dc.SendTimeout)
	sw := sweeper.New(swc, store, ad, disp, log, bus)

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log, bus)

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		sessions: sessions,
		engine:   eng,
		router:   rt,
		disp:     disp,
		sweep:    sw,
		sched:    sched,
		updates:  make(chan kit.Update, 256),
	}
	if err := a.registerJobs(cfg); err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) registerJobs(cfg *config.Config) error {
	poll, err := mapPollJob(cfg)
	if err != nil {
		return err
	}
	sweep, err := mapSweepJob(cfg)
	if err != nil {
		return err
	}
	if _, err := a.sched.AddSchedule(jobPoll, poll.schedule, poll.timeout, func(ctx context.Context) error {
		_, err := a.disp.CheckAndSend(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("poll job: %w", err)
	}
	if _, err := a.sched.AddSchedule(jobSweep, sweep.schedule, sweep.timeout, func(ctx context.Context) error {
		_, err := a.sweep.Sweep(ctx, time.Now())
		return err
	}); err != nil {
		return fmt.Errorf("sweep job: %w", err)
	}
	return nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("transport start: %w", err)
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go("telegram.menu", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, conversation.Commands()); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	a.sup.Go("updates.loop", func(c context.Context) error {
		return a.router.Loop(c, a.updates)
	})

	a.sched.Start(a.sup.Context())

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, time.Minute),
	)

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated config into the running components.
// Storage and the bot token need a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := func(s string) bool { return slices.Contains(sections, s) }

	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if prev != nil && prev.Telegram.Token != next.Telegram.Token {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}
	if changed("logging") || changed("telegram") {
		a.logs.Apply(mapLogConfig(next))
	}

	dc, err := mapDispatchConfig(next)
	if err == nil {
		a.disp.Apply(dc)
	}
	if swc, err := mapSweeperConfig(next, dc.SendTimeout); err == nil {
		a.sweep.Apply(swc)
	}
	if conv, err := mapConversation(next); err == nil {
		a.sessions.SetIdle(conv.idle)
		a.router.SetTurnTimeout(conv.turn)
		if prev != nil && (prev.Conversation.CurrencyFile != next.Conversation.CurrencyFile) {
			a.log.Warn("currency file changed; restart required for changes to take effect")
		}
	}
	a.sched.Apply(scheduler.Config{Timezone: next.Scheduler.Timezone})
	if changed("poll") || changed("sweeper") {
		if err := a.registerJobs(next); err != nil {
			a.log.Warn("reschedule failed; keeping previous schedules", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts everything down in dependency order. Each step is bounded so
// one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Scheduler first: it waits for an in-flight poll or sweep to unwind.
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("sessions", time.Second, func(context.Context) error { a.sessions.Close(); return nil })
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.Int("in_flight_deliveries", a.disp.InFlight()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
