// Package logging configures log/slog the way pug's internal packages use
// it (slog.Debug/Info/Error with key/value pairs), backed by a handler
// that logfmt-encodes records via github.com/go-logfmt/logfmt instead of
// slog's built-in text handler.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/go-logfmt/logfmt"
)

// Setup installs a logfmt-backed slog.Logger as the default logger at the
// given level ("debug", "info", "warn", "error") and returns it.
func Setup(w io.Writer, level string) *slog.Logger {
	logger := slog.New(NewHandler(w, parseLevel(level)))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Handler is a slog.Handler that logfmt-encodes each record: a "ts" key,
// "level", "msg", then any attributes carried by WithAttrs, followed by
// the record's own attributes in call order. Keys of both are prefixed
// with the groups opened by WithGroup.
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewHandler returns a Handler writing logfmt lines to w, emitting
// records at level or above.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	enc := logfmt.NewEncoder(h.w)
	if err := enc.EncodeKeyval("ts", r.Time.Format("2006-01-02T15:04:05.000Z07:00")); err != nil {
		return err
	}
	if err := enc.EncodeKeyval("level", r.Level.String()); err != nil {
		return err
	}
	if err := enc.EncodeKeyval("msg", r.Message); err != nil {
		return err
	}
	for _, a := range h.attrs {
		if err := encodeAttr(enc, h.groups, a); err != nil {
			return err
		}
	}
	var encErr error
	r.Attrs(func(a slog.Attr) bool {
		if err := encodeAttr(enc, h.groups, a); err != nil {
			encErr = err
			return false
		}
		return true
	})
	if encErr != nil {
		return encErr
	}
	return enc.EndRecord()
}

func encodeAttr(enc *logfmt.Encoder, groups []string, a slog.Attr) error {
	key := a.Key
	for i := len(groups) - 1; i >= 0; i-- {
		key = groups[i] + "." + key
	}
	return enc.EncodeKeyval(key, fmt.Sprint(a.Value.Any()))
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &cp
}

func (h *Handler) WithGroup(name string) slog.Handler {
	cp := *h
	cp.groups = append(append([]string(nil), h.groups...), name)
	return &cp
}
