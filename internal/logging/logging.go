// Package logging provides the process console log: a slog handler that
// writes "time | LEVEL | message key=value" lines, coloured with
// fatih/color when enabled.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

const timeLayout = "2006-01-02T15:04:05"

type palette struct {
	time, msg, attr            *color.Color
	debug, info, warn, errored *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		time:    color.New(color.FgGreen),
		msg:     color.New(color.FgCyan),
		attr:    color.New(color.FgCyan),
		debug:   color.New(color.FgMagenta),
		info:    color.New(color.FgBlue),
		warn:    color.New(color.FgYellow),
		errored: color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.time, p.msg, p.attr, p.debug, p.info, p.warn, p.errored} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *palette) level(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return p.errored
	case l >= slog.LevelWarn:
		return p.warn
	case l >= slog.LevelInfo:
		return p.info
	default:
		return p.debug
	}
}

// ConsoleHandler is a slog.Handler for human-readable console output.
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	colors *palette
	attrs  string // preformatted attributes from WithAttrs
	group  string // key prefix from WithGroup
}

// NewConsoleHandler writes records at or above level to w.
func NewConsoleHandler(w io.Writer, level slog.Leveler, colored bool) *ConsoleHandler {
	return &ConsoleHandler{
		mu:     &sync.Mutex{},
		w:      w,
		level:  level,
		colors: newPalette(colored),
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.colors.time.Sprint(r.Time.Format(timeLayout)))
	b.WriteString(" | ")
	b.WriteString(h.colors.level(r.Level).Sprintf("%-5s", r.Level.String()))
	b.WriteString(" | ")
	b.WriteString(h.colors.msg.Sprint(r.Message))
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		b.WriteString(h.formatAttr(h.group, a))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		b.WriteString(h.formatAttr(h.group, a))
	}
	next.attrs = b.String()
	return &next
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.group + name + "."
	return &next
}

func (h *ConsoleHandler) formatAttr(prefix string, a slog.Attr) string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return ""
	}
	if a.Value.Kind() == slog.KindGroup {
		var b strings.Builder
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			b.WriteString(h.formatAttr(inner, ga))
		}
		return b.String()
	}
	return h.colors.attr.Sprint(fmt.Sprintf(" %s%s=%v", prefix, a.Key, a.Value))
}

// ParseLevel maps debug, info, warn or error (any case) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// Setup builds the process logger and installs it as the slog default.
func Setup(w io.Writer, level string, colored bool) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := slog.New(NewConsoleHandler(w, l, colored))
	slog.SetDefault(logger)
	return logger, nil
}
