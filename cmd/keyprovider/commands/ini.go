package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/keyprovider/internal/app"
	"github.com/florianilch/keyprovider/internal/ini"
	"github.com/florianilch/keyprovider/internal/keyprovider"
)

func iniCommand() *cli.Command {
	return &cli.Command{
		Name:  "ini",
		Usage: "Inspect and edit key store files directly",
		Commands: []*cli.Command{
			{
				Name:      "sections",
				Usage:     "List the sections of a file",
				ArgsUsage: "FILE",
				Action:    withSession(iniSectionsAction),
			},
			{
				Name:      "keys",
				Usage:     "List the keys of a section",
				ArgsUsage: "FILE SECTION",
				Action:    withSession(iniKeysAction),
			},
			{
				Name:      "read",
				Usage:     "Print the values of keys, one per line",
				ArgsUsage: "FILE SECTION KEY...",
				Action:    withSession(iniReadAction),
			},
			{
				Name:      "write",
				Usage:     "Merge KEY=VALUE pairs into a section",
				ArgsUsage: "FILE SECTION KEY=VALUE...",
				Action:    withApp(iniWriteAction),
			},
		},
	}
}

func printLines(cmd *cli.Command, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(output(cmd), l); err != nil {
			return err
		}
	}
	return nil
}

func iniSectionsAction(ctx context.Context, cmd *cli.Command, _ *session) error {
	args, err := exactArgs(cmd, 1)
	if err != nil {
		return err
	}

	names, err := ini.Sections(args[0])
	if err != nil {
		return err
	}
	return printLines(cmd, names)
}

func iniKeysAction(ctx context.Context, cmd *cli.Command, _ *session) error {
	args, err := exactArgs(cmd, 2)
	if err != nil {
		return err
	}

	keys, err := ini.Keys(args[0], args[1])
	if err != nil {
		return err
	}
	return printLines(cmd, keys)
}

// iniReadAction prints one line per requested key, in request order; a missing
// key prints an empty line. Any missing key fails the command once every line
// is printed.
func iniReadAction(ctx context.Context, cmd *cli.Command, _ *session) error {
	args := cmd.Args().Slice()
	if len(args) < 3 {
		return usageError(cmd, "expected at least 3 arguments (usage: %s)", cmd.ArgsUsage)
	}

	keys := args[2:]
	results, err := ini.ReadMultiple(args[0], args[1], keys)
	if err != nil {
		return err
	}

	var missing []string
	for i, r := range results {
		if !r.Found {
			missing = append(missing, keys[i])
		}
		if _, err := fmt.Fprintln(output(cmd), r.Value); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("[%s] %s: %w", args[1], strings.Join(missing, ", "), keyprovider.ErrNotFound)
	}
	return nil
}

func iniWriteAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	args := cmd.Args().Slice()
	if len(args) < 3 {
		return usageError(cmd, "expected at least 3 arguments (usage: %s)", cmd.ArgsUsage)
	}

	var keys, values []string
	for _, pair := range args[2:] {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return usageError(cmd, "%q is not KEY=VALUE", pair)
		}
		keys = append(keys, k)
		values = append(values, v)
	}

	return a.WriteRaw(args[0], args[1], keys, values)
}
