package logger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	slogzerolog "github.com/samber/slog-zerolog/v2"

	"github.com/rs/zerolog"
)

// Opts configures a new Logger. Env selects the console-pretty vs JSON
// zerolog writer.
type Opts struct {
	Env      string // "development" -> pretty console, anything else -> JSON
	SentryDSN string
	Level    slog.Level
}

// Impl is the concrete Logger backed by log/slog.
type Impl struct {
	slog *slog.Logger
}

var _ Logger = (*Impl)(nil)

// New builds a Logger. When opts.SentryDSN is set, sentry.Init is called and
// log lines at Error level or above are additionally forwarded to Sentry via
// slog-multi fanout, so Error-level events such as a tripped circuit breaker
// reach Sentry alongside the stdout sink.
func New(opts Opts) *Impl {
	if opts.Level == 0 {
		opts.Level = slog.LevelInfo
	}

	var zl zerolog.Logger
	if opts.Env == "development" {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	} else {
		zl = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	zerologHandler := slogzerolog.Option{Level: opts.Level, Logger: &zl}.NewZerologHandler()

	handlers := []slog.Handler{zerologHandler}

	if opts.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN}); err != nil {
			zl.Warn().Err(err).Msg("failed to initialize sentry, continuing without it")
		} else {
			sentryHandler := slogsentry.Option{Level: slog.LevelError}.NewSentryHandler()
			handlers = append(handlers, sentryHandler)
		}
	}

	handler := slogmulti.Fanout(handlers...)
	return &Impl{slog: slog.New(handler)}
}

func (l *Impl) Debug(msg string, kv ...any) { l.slog.Debug(msg, kv...) }
func (l *Impl) Info(msg string, kv ...any)  { l.slog.Info(msg, kv...) }
func (l *Impl) Warn(msg string, kv ...any)  { l.slog.Warn(msg, kv...) }
func (l *Impl) Error(msg string, kv ...any) { l.slog.Error(msg, kv...) }

func (l *Impl) WithComponent(name string) Logger {
	return &Impl{slog: l.slog.With("component", name)}
}

// Printf satisfies fx.Printer.
func (l *Impl) Printf(format string, v ...any) {
	l.slog.Info(fmt.Sprintf(format, v...))
}
