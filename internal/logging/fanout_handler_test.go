package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerNilHandlers(t *testing.T) {
	h := newFanoutHandler(nil, nil, nil)
	if _, ok := h.(NoopHandler); !ok {
		t.Errorf("expected NoopHandler for all nil handlers, got %T", h)
	}
}

func TestNewFanoutHandlerFiltersNil(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	h := newFanoutHandler(nil, inner, nil)
	if h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerEnabled(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewJSONHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelWarn})
	h2 := slog.NewJSONHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newFanoutHandler(h1, h2)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected fanout to be enabled for debug")
	}

	h = newFanoutHandler(h1, slog.NewJSONHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError}))
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected fanout to not be enabled for info")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevel(t *testing.T) {
	var infoBuf, warnBuf bytes.Buffer
	h1 := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(newFanoutHandler(h1, h2))
	logger.Info("info only")
	logger.Warn("both")

	if !strings.Contains(infoBuf.String(), "info only") || !strings.Contains(infoBuf.String(), "both") {
		t.Fatalf("info handler missing records: %s", infoBuf.String())
	}
	if strings.Contains(warnBuf.String(), "info only") {
		t.Fatalf("warn handler received info record: %s", warnBuf.String())
	}
	if !strings.Contains(warnBuf.String(), "both") {
		t.Fatalf("warn handler missing warn record: %s", warnBuf.String())
	}
}

func TestTeeLoggerWithAttrsPropagates(t *testing.T) {
	var base, extra bytes.Buffer
	logger := TeeLogger(
		slog.New(slog.NewJSONHandler(&base, nil)),
		slog.NewJSONHandler(&extra, nil),
	).With(String("flow", "Movies"))

	logger.Info("hello")
	for name, buf := range map[string]*bytes.Buffer{"base": &base, "extra": &extra} {
		if !strings.Contains(buf.String(), `"flow":"Movies"`) {
			t.Fatalf("%s handler missing attr: %s", name, buf.String())
		}
	}
}
