package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/keyprovider/internal/app"
	"github.com/florianilch/keyprovider/internal/codec"
	"github.com/florianilch/keyprovider/internal/secretsource"
)

func schemeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "scheme",
			Usage: "encoding scheme",
			Value: codec.SchemeXOR,
		},
		&cli.StringFlag{
			Name:     "scheme-key",
			Aliases:  []string{"k"},
			Usage:    "key used by the encoding scheme",
			Required: true,
		},
	}
}

func secretFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "secret",
		Usage: "read the value from file:PATH, env:NAME, keyring:SERVICE/USER, prompt[:LABEL] or literal:VALUE",
	}
}

func output(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

// readSecret resolves the --secret reference of cmd.
func readSecret(ctx context.Context, cmd *cli.Command) (string, error) {
	source, err := secretsource.Parse(cmd.String("secret"))
	if err != nil {
		return "", usageError(cmd, "%v", err)
	}
	value, err := source.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return value, nil
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:      "keygen",
		Usage:     "Print the encoded form of values, for pasting into a key store file",
		ArgsUsage: "[VALUE...]",
		Flags:     append(schemeFlags(), secretFlag()),
		Action:    withSession(keygenAction),
	}
}

func keygenAction(ctx context.Context, cmd *cli.Command, _ *session) error {
	values := cmd.Args().Slice()
	if cmd.IsSet("secret") {
		v, err := readSecret(ctx, cmd)
		if err != nil {
			return err
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return usageError(cmd, "no value given")
	}

	for _, v := range values {
		encoded, err := codec.EncodeKey(v, cmd.String("scheme"), cmd.String("scheme-key"))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(output(cmd), encoded); err != nil {
			return err
		}
	}
	return nil
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Print the plain form of encoded values",
		ArgsUsage: "ENCODED...",
		Flags:     schemeFlags(),
		Action:    withSession(decodeAction),
	}
}

func decodeAction(ctx context.Context, cmd *cli.Command, _ *session) error {
	if cmd.NArg() == 0 {
		return usageError(cmd, "no value given")
	}

	for _, encoded := range cmd.Args().Slice() {
		plain, err := codec.DecodeKey(encoded, cmd.String("scheme"), cmd.String("scheme-key"))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(output(cmd), plain); err != nil {
			return err
		}
	}
	return nil
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Resolve and print a stored key",
		ArgsUsage: "PROVIDER SERVICE NAME",
		Action:    withApp(getAction),
	}
}

func getAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	args, err := exactArgs(cmd, 3)
	if err != nil {
		return err
	}

	value, err := a.Provider().StoredKey(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output(cmd), value)
	return err
}

func storeCommand() *cli.Command {
	return &cli.Command{
		Name:      "store",
		Usage:     "Encode a value and store it in the writable key store",
		ArgsUsage: "PROVIDER SERVICE NAME [VALUE]",
		Flags: append(schemeFlags(),
			secretFlag(),
			&cli.BoolFlag{
				Name:  "encoded",
				Usage: "the value is already encoded with the scheme and key",
			},
		),
		Action: withApp(storeAction),
	}
}

func storeAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	args := cmd.Args().Slice()
	var value string
	switch {
	case len(args) == 4 && !cmd.IsSet("secret"):
		value = args[3]
	case len(args) == 3 && cmd.IsSet("secret"):
		v, err := readSecret(ctx, cmd)
		if err != nil {
			return err
		}
		value = v
	default:
		return usageError(cmd, "give the value either as the fourth argument or with --secret (usage: %s)", cmd.ArgsUsage)
	}

	provider, service, name := args[0], args[1], args[2]
	scheme, schemeKey := cmd.String("scheme"), cmd.String("scheme-key")

	var err error
	if cmd.Bool("encoded") {
		err = a.Provider().StoreKey(ctx, provider, service, name, value, scheme, schemeKey)
	} else {
		err = a.Provider().EncodeAndStore(ctx, provider, service, name, value, scheme, schemeKey)
	}
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "stored", "path", a.Config().Store.File)
	return nil
}
