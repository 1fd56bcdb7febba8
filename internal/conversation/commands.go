package conversation

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"satsalert/internal/refdata"
	"satsalert/internal/storage"
	"satsalert/internal/transport"
	logx "satsalert/pkg/logx"
)

// maxExtendDays caps /extend so created_at stays a sane date.
const maxExtendDays = 3650

type command struct {
	name        string
	withArgs    bool // matched as "name " prefix instead of exact text
	description string
	run         func(e *Engine, ctx context.Context, userID int64, args []string) error
}

var commands = []command{
	{name: "/new", description: "Create a new alert", run: (*Engine).cmdNew},
	{name: "/list", description: "List your alerts", run: (*Engine).cmdList},
	{name: "/disable", withArgs: true, description: "Mute an alert: /disable <id>", run: (*Engine).cmdDisable},
	{name: "/disableall", description: "Mute all alerts", run: (*Engine).cmdDisableAll},
	{name: "/enable", withArgs: true, description: "Re-enable an alert: /enable <id>", run: (*Engine).cmdEnable},
	{name: "/enableall", description: "Re-enable all alerts", run: (*Engine).cmdEnableAll},
	{name: "/extend", withArgs: true, description: "Extend an alert: /extend <id> <days>", run: (*Engine).cmdExtend},
	{name: "/remove", withArgs: true, description: "Delete an alert: /remove <id>", run: (*Engine).cmdRemove},
	{name: "/satoshi", description: "A random Satoshi quote", run: (*Engine).cmdSatoshi},
	{name: "/help", description: "How to use the bot", run: (*Engine).cmdHelp},
}

// Commands lists the global commands for platform command menus.
func Commands() []transport.BotCommand {
	out := make([]transport.BotCommand, 0, len(commands))
	for _, c := range commands {
		out = append(out, transport.BotCommand{Command: strings.TrimPrefix(c.name, "/"), Description: c.description})
	}
	return out
}

// matchCommand is case-sensitive. Argument commands need a space after the
// name, so "/disableall" never matches "/disable".
func matchCommand(text string) (command, []string, bool) {
	for _, c := range commands {
		if c.withArgs {
			if strings.HasPrefix(text, c.name+" ") {
				return c, strings.Fields(text)[1:], true
			}
			continue
		}
		if text == c.name {
			return c, nil, true
		}
	}
	return command{}, nil, false
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

func (e *Engine) cmdNew(ctx context.Context, userID int64, _ []string) error {
	e.sessions.Start(userID)
	return e.reply(ctx, userID, msgAskAction)
}

func (e *Engine) cmdList(ctx context.Context, userID int64, _ []string) error {
	alerts, err := e.store.GetAlertsForUser(ctx, userID, nil)
	if err != nil {
		e.log.Error("list alerts failed", logx.Int64("user_id", userID), logx.Err(err))
		return e.reply(ctx, userID, msgDatabaseError)
	}
	return e.reply(ctx, userID, formatAlertList(alerts))
}

// lookupForToggle resolves the alert for /enable and /disable. ok is false
// when a reply has already been produced.
func (e *Engine) lookupForToggle(ctx context.Context, userID int64, raw string) (storage.Alert, string, bool) {
	id, valid := parseID(raw)
	if !valid {
		return storage.Alert{}, msgNotFound(raw), false
	}
	a, err := e.store.GetAlert(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Alert{}, msgNotFound(raw), false
	}
	if err != nil {
		e.log.Error("get alert failed", logx.Int64("user_id", userID), logx.Int64("alert_id", id), logx.Err(err))
		return storage.Alert{}, msgStatusQueryFailed, false
	}
	return a, "", true
}

func (e *Engine) cmdDisable(ctx context.Context, userID int64, args []string) error {
	raw := firstArg(args)
	a, msg, ok := e.lookupForToggle(ctx, userID, raw)
	if !ok {
		return e.reply(ctx, userID, msg)
	}
	if !a.Active {
		return e.reply(ctx, userID, msgAlreadyDisabled(raw))
	}
	n, err := e.store.SetActive(ctx, userID, a.ID, false)
	if err != nil {
		e.log.Error("disable alert failed", logx.Int64("alert_id", a.ID), logx.Err(err))
		return e.reply(ctx, userID, msgDisableFailed)
	}
	if n == 0 {
		return e.reply(ctx, userID, msgAlreadyDisabled(raw))
	}
	return e.reply(ctx, userID, msgDisabled(raw))
}

func (e *Engine) cmdEnable(ctx context.Context, userID int64, args []string) error {
	raw := firstArg(args)
	a, msg, ok := e.lookupForToggle(ctx, userID, raw)
	if !ok {
		return e.reply(ctx, userID, msg)
	}
	if a.Active {
		return e.reply(ctx, userID, msgAlreadyEnabled(raw))
	}
	n, err := e.store.SetActive(ctx, userID, a.ID, true)
	if err != nil {
		e.log.Error("enable alert failed", logx.Int64("alert_id", a.ID), logx.Err(err))
		return e.reply(ctx, userID, msgEnableFailed)
	}
	if n == 0 {
		return e.reply(ctx, userID, msgAlreadyEnabled(raw))
	}
	return e.reply(ctx, userID, msgEnabled(raw))
}

func (e *Engine) cmdDisableAll(ctx context.Context, userID int64, _ []string) error {
	n, err := e.store.SetActiveAll(ctx, userID, false)
	switch {
	case err != nil:
		e.log.Error("disable all failed", logx.Int64("user_id", userID), logx.Err(err))
		return e.reply(ctx, userID, msgDisableAllError)
	case n == 0:
		return e.reply(ctx, userID, msgNoneToDisable)
	}
	return e.reply(ctx, userID, msgAllDisabled)
}

func (e *Engine) cmdEnableAll(ctx context.Context, userID int64, _ []string) error {
	n, err := e.store.SetActiveAll(ctx, userID, true)
	switch {
	case err != nil:
		e.log.Error("enable all failed", logx.Int64("user_id", userID), logx.Err(err))
		return e.reply(ctx, userID, msgEnableAllError)
	case n == 0:
		return e.reply(ctx, userID, msgNoneToEnable)
	}
	return e.reply(ctx, userID, msgAllEnabled)
}

func (e *Engine) cmdRemove(ctx context.Context, userID int64, args []string) error {
	raw := firstArg(args)
	id, ok := parseID(raw)
	if !ok {
		return e.reply(ctx, userID, msgBadRemoveID)
	}
	if _, err := e.store.GetAlert(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return e.reply(ctx, userID, msgNotFound(raw))
		}
		e.log.Error("get alert failed", logx.Int64("alert_id", id), logx.Err(err))
		return e.reply(ctx, userID, msgFindFailed)
	}
	n, err := e.store.DeleteAlert(ctx, userID, id)
	if err != nil {
		e.log.Error("remove alert failed", logx.Int64("alert_id", id), logx.Err(err))
		return e.reply(ctx, userID, msgRemoveFailed)
	}
	if n == 0 {
		return e.reply(ctx, userID, msgNotFound(raw))
	}
	return e.reply(ctx, userID, msgRemoved(raw))
}

func (e *Engine) cmdExtend(ctx context.Context, userID int64, args []string) error {
	if len(args) < 2 {
		return e.reply(ctx, userID, msgExtendFormat)
	}
	raw := args[0]
	days, err := strconv.Atoi(args[1])
	if err != nil || days < 0 || days > maxExtendDays {
		return e.reply(ctx, userID, msgExtendFormat)
	}
	id, ok := parseID(raw)
	if !ok {
		return e.reply(ctx, userID, msgExtendNotFound(raw))
	}
	if _, err := e.store.GetAlert(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return e.reply(ctx, userID, msgExtendNotFound(raw))
		}
		e.log.Error("get alert failed", logx.Int64("alert_id", id), logx.Err(err))
		return e.reply(ctx, userID, msgQueryFailed)
	}

	now := e.now()
	n, err := e.store.ExtendExpiry(ctx, userID, id, days, now)
	if err != nil {
		e.log.Error("extend alert failed", logx.Int64("alert_id", id), logx.Err(err))
		return e.reply(ctx, userID, msgExtendFailed)
	}
	if n == 0 {
		return e.reply(ctx, userID, msgExtendNotFound(raw))
	}
	until := storage.FormatTime(storage.ExtendedCreatedAt(now, days))
	return e.reply(ctx, userID, msgExtended(raw, until))
}

func (e *Engine) cmdSatoshi(ctx context.Context, userID int64, _ []string) error {
	if e.quotes == nil {
		return e.reply(ctx, userID, msgQuoteFailed)
	}
	q, err := e.quotes.Random()
	switch {
	case errors.Is(err, refdata.ErrNoQuotes):
		return e.reply(ctx, userID, msgNoQuotes)
	case err != nil:
		e.log.Warn("load quotes failed", logx.Err(err))
		return e.reply(ctx, userID, msgQuoteFailed)
	}
	return e.reply(ctx, userID, formatQuote(q))
}

func (e *Engine) cmdHelp(ctx context.Context, userID int64, _ []string) error {
	return e.reply(ctx, userID, msgHelp)
}
