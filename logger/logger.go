package logger

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
)

type ConsoleHandlerOpts struct {
	SlogOpts slog.HandlerOptions
}

// ConsoleHandler prints colored, human-readable records. Attrs are
// rendered as an indented JSON blob after the message.
type ConsoleHandler struct {
	slog.Handler
	l *log.Logger
}

func NewConsoleHandler(out io.Writer, opts ConsoleHandlerOpts) *ConsoleHandler {
	return &ConsoleHandler{
		Handler: slog.NewJSONHandler(out, &opts.SlogOpts),
		l:       log.New(out, "", 0),
	}
}

func (ch *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	switch r.Level {
	case slog.LevelDebug:
		level = color.WhiteString(level)
	case slog.LevelInfo:
		level = color.GreenString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	default:
		// Unrecognized level.
		level = color.HiWhiteString(level)
	}
	timeStr := r.Time.Format("[15:05:05]")
	message := color.HiWhiteString(r.Message)
	if r.NumAttrs() == 0 {
		ch.l.Println(timeStr, level, message)
		return nil
	}
	fields := make(map[string]interface{}, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	j, err := json.MarshalIndent(fields, "", " ")
	if err != nil {
		return err
	}
	ch.l.Println(timeStr, level, message, color.WhiteString(string(j)))
	return nil
}

// New builds the application logger: a colored console handler, plus
// a JSON file handler when logFile is set. Debug level outside
// production.
func New(env, logFile string) *slog.Logger {
	level := slog.LevelDebug
	if env == "production" {
		level = slog.LevelInfo
	}
	opts := slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{
		NewConsoleHandler(os.Stdout, ConsoleHandlerOpts{SlogOpts: opts}),
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Error("failed to open log file", "path", logFile, "err", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &opts))
		}
	}
	return slog.New(slogmulti.Fanout(handlers...))
}
