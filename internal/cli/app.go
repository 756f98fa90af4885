package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/roach88/changewatch/internal/clean"
	"github.com/roach88/changewatch/internal/config"
	"github.com/roach88/changewatch/internal/fetch"
	"github.com/roach88/changewatch/internal/monitor"
	"github.com/roach88/changewatch/internal/notify"
	"github.com/roach88/changewatch/internal/store"
)

// DefaultConfigFile is read when --config is not given and the file exists.
const DefaultConfigFile = "changewatch.yaml"

// loadConfig resolves the config file and applies the --db override.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", DefaultConfigFile, err)
		}
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// newLogger builds the process logger from config. Logs always go to w,
// never to the command's output, so JSON output stays parseable.
func newLogger(w io.Writer, cfg *config.Config, verbose bool) *slog.Logger {
	return config.NewLogger(w, cfg.Logging, verbose)
}

// openStore opens the configured database, wrapping failures as command errors.
func openStore(path string, opts ...store.Option) (*store.Store, error) {
	st, err := store.Open(path, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// buildDispatcher creates the enabled notification channels. Console output
// goes to console.
func buildDispatcher(cfg *config.Config, console io.Writer, logger *slog.Logger) (*notify.Dispatcher, error) {
	var notifiers []notify.Notifier
	n := cfg.Notifications

	if n.Console.IsEnabled() {
		notifiers = append(notifiers, notify.NewConsole(console,
			notify.WithColor(n.Console.Color),
			notify.WithVerbose(n.Console.Verbose),
		))
	}

	if n.Email.Enabled {
		sender, err := buildSender(n.Email)
		if err != nil {
			return nil, err
		}
		email, err := notify.NewEmail(sender, n.Email.From, n.Email.To)
		if err != nil {
			return nil, fmt.Errorf("email channel: %w", err)
		}
		notifiers = append(notifiers, email)
	}

	if n.Telegram.Enabled {
		var opts []notify.TelegramOption
		if n.Telegram.RateLimit > 0 {
			opts = append(opts, notify.WithTelegramRateLimit(n.Telegram.RateLimit))
		}
		tg, err := notify.NewTelegram(n.Telegram.BotToken, n.Telegram.ChatID, opts...)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		notifiers = append(notifiers, tg)
	}

	return notify.NewDispatcher(cfg.NotifyTimeout.Std(), logger, notifiers...), nil
}

func buildSender(c config.EmailConfig) (notify.Sender, error) {
	switch c.Provider {
	case "resend":
		sender, err := notify.NewResendSender(c.ResendAPIKey)
		if err != nil {
			return nil, fmt.Errorf("email channel: %w", err)
		}
		return sender, nil
	default:
		return &notify.SMTPSender{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUser,
			Password: c.SMTPPassword,
		}, nil
	}
}

// buildSources turns configured sources into monitor sources with fetchers.
func buildSources(sources []config.Source) ([]monitor.Source, error) {
	out := make([]monitor.Source, 0, len(sources))
	for _, s := range sources {
		fetcher, err := buildFetcher(s)
		if err != nil {
			return nil, err
		}
		out = append(out, monitor.Source{
			Name:          s.Name,
			KeyFields:     s.KeyFields,
			CompareFields: s.CompareFields,
			PriceField:    s.PriceField,
			Retention:     s.Retention,
			Silent:        !s.NotificationsEnabled(),
			SkipEmpty:     s.SkipEmpty,
			Clean:         buildCleaner(s),
			Fetcher:       fetcher,
		})
	}
	return out, nil
}

// buildCleaner returns nil when the source configures no cleaning.
func buildCleaner(s config.Source) *clean.Cleaner {
	c := &clean.Cleaner{
		NormalizeFields: s.NormalizeFields,
		RequiredFields:  s.RequiredFields,
	}
	if s.DedupeByKey {
		c.DedupeKeys = s.KeyFields
	}
	if !c.Enabled() {
		return nil
	}
	return c
}

func buildFetcher(s config.Source) (fetch.Fetcher, error) {
	switch s.Type {
	case config.SourceStatic:
		h, err := fetch.NewHTML(s.URL, s.Selectors.Container, s.Selectors.Fields)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Name, err)
		}
		return h, nil
	case config.SourceJSON, "":
		return fetch.NewJSON(s.URL), nil
	default:
		return nil, fmt.Errorf("source %s: unknown type %q", s.Name, s.Type)
	}
}
