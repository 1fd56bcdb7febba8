package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"satsalert/internal/transport"
)

type captureSender struct {
	mu   sync.Mutex
	sent []string
	got  chan struct{}
}

func (c *captureSender) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	c.sent = append(c.sent, text)
	c.mu.Unlock()
	select {
	case c.got <- struct{}{}:
	default:
	}
	return transport.MessageRef{}, nil
}

func TestFormatChatLine(t *testing.T) {
	line := []byte(`{"level":"warn","message":"send failed","user_id":42,"comp":"dispatch","time":"x"}` + "\n")
	got := formatChatLine(line)
	want := "[WARN] send failed\n- comp=dispatch\n- user_id=42"
	if got != want {
		t.Fatalf("formatChatLine:\n got %q\nwant %q", got, want)
	}

	if got := formatChatLine([]byte("  not json  ")); got != "not json" {
		t.Fatalf("raw passthrough: %q", got)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Debug("hello", Int("n", 3))

	out := buf.String()
	for _, want := range []string{`"comp":"test"`, `"n":3`, `"message":"hello"`, `"caller":"logging_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
	if !log.Enabled(LevelDebug) || log.Enabled(zerolog.TraceLevel) {
		t.Fatalf("unexpected Enabled results")
	}
}

func TestTraceFollowsLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "trace").Trace("fine grained", String("step", "admit"))
	if out := buf.String(); !strings.Contains(out, `"level":"trace"`) || !strings.Contains(out, `"step":"admit"`) {
		t.Fatalf("trace line missing: %s", out)
	}

	buf.Reset()
	NewWriter(&buf, "debug").Trace("fine grained")
	if buf.Len() != 0 {
		t.Fatalf("trace logged at debug level: %s", buf.String())
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("discarded")
}

func TestChatSinkRespectsMinLevel(t *testing.T) {
	snd := &captureSender{got: make(chan struct{}, 4)}
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, ChatID: 7, MinLevel: "warn", RatePerSec: 10},
	}, snd)
	defer svc.Close()

	log.Info("quiet")
	log.Warn("loud")

	select {
	case <-snd.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a chat message")
	}

	snd.mu.Lock()
	defer snd.mu.Unlock()
	if len(snd.sent) != 1 || !strings.HasPrefix(snd.sent[0], "[WARN] loud") {
		t.Fatalf("unexpected chat messages: %q", snd.sent)
	}
}
