package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/keyprovider/internal/app"
	"github.com/florianilch/keyprovider/internal/keyprovider"
	"github.com/florianilch/keyprovider/internal/observability"
)

// Exit codes returned by the keyprovider binary.
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitInvalidArgument = 2
	ExitNotFound        = 3
	ExitParse           = 4
	ExitIO              = 5
	ExitCodec           = 6
	ExitLock            = 7
)

// configFlags names the flags that map onto app.Config keys.
var configFlags = map[string]bool{
	"log-level":          true,
	"log-format":         true,
	"log-exporter":       true,
	"store--dir":         true,
	"store--file":        true,
	"store--static-dir":  true,
	"store--static-file": true,
	"lock--dir":          true,
	"lock--timeout":      true,
	"lock--disabled":     true,
}

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

// ExitCode maps an error returned by Execute to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch keyprovider.KindOf(err) {
	case keyprovider.KindInvalidArgument:
		return ExitInvalidArgument
	case keyprovider.KindNotFound:
		return ExitNotFound
	case keyprovider.KindParse:
		return ExitParse
	case keyprovider.KindIO:
		return ExitIO
	case keyprovider.KindCodec:
		return ExitCodec
	case keyprovider.KindLock:
		return ExitLock
	default:
		return ExitFailure
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "keyprovider",
		Usage: "Store and resolve obscured configuration secrets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (none|stdout|otlp-http|otlp-grpc)",
				Value: app.DefaultConfigLogExporter,
			},
			&cli.StringFlag{
				Name:  "store--file",
				Usage: "writable key store file",
			},
			&cli.StringFlag{
				Name:  "store--dir",
				Usage: "directory created for the writable key store",
			},
			&cli.StringFlag{
				Name:  "store--static-dir",
				Usage: "directory of read-only key store files",
			},
			&cli.StringFlag{
				Name:  "store--static-file",
				Usage: "read-only key store file",
			},
			&cli.StringFlag{
				Name:  "lock--dir",
				Usage: "directory holding the inter-process lock files",
			},
			&cli.DurationFlag{
				Name:  "lock--timeout",
				Usage: "how long a write waits for the store lock (negative waits forever)",
				Value: app.DefaultConfigLockTimeout,
			},
			&cli.BoolFlag{
				Name:  "lock--disabled",
				Usage: "do not coordinate writes with other processes",
			},
		},
		Commands: []*cli.Command{
			keygenCommand(),
			decodeCommand(),
			getCommand(),
			storeCommand(),
			oauthCommand(),
			iniCommand(),
			lockCommand(),
		},
	}
}

// session is the per-invocation state shared by command actions.
type session struct {
	cfg      *app.Config
	shutdown observability.ShutdownFunc
}

// startSession loads the configuration and sets up logging.
func startSession(ctx context.Context, cmd *cli.Command) (*session, error) {
	cfg, err := loadConfig(configSource{
		path:     cmd.String("config"),
		fallback: defaultConfigPath(),
		environ:  os.Environ,
		flags:    configFlagValues(cmd),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.LogExporter)
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return &session{cfg: cfg, shutdown: shutdown}, nil
}

func (s *session) close(ctx context.Context) error {
	// The command may have been canceled; flushing logs still deserves a chance
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return s.shutdown(ctx)
}

// withSession wraps an action that needs only the configuration.
func withSession(action func(context.Context, *cli.Command, *session) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		s, err := startSession(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, s.close(ctx)) }()

		return action(ctx, cmd, s)
	}
}

// withApp wraps an action that works on the key store.
func withApp(action func(context.Context, *cli.Command, *app.App) error) cli.ActionFunc {
	return withSession(func(ctx context.Context, cmd *cli.Command, s *session) (err error) {
		application, err := app.New(s.cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}
		defer func() { err = errors.Join(err, application.Close()) }()

		if err := application.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}

		return action(ctx, cmd, application)
	})
}

// usageError reports bad command-line arguments.
func usageError(cmd *cli.Command, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", cmd.FullName(), keyprovider.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// exactArgs returns the positional arguments, which must number exactly n.
func exactArgs(cmd *cli.Command, n int) ([]string, error) {
	args := cmd.Args().Slice()
	if len(args) != n {
		return nil, usageError(cmd, "expected %d arguments, got %d (usage: %s)", n, len(args), cmd.ArgsUsage)
	}
	return args, nil
}
