package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/keyprovider/internal/app"
	"github.com/florianilch/keyprovider/internal/procmutex"
)

func lockCommand() *cli.Command {
	return &cli.Command{
		Name:  "lock",
		Usage: "Inspect the inter-process lock of the key store",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show whether the store is write-locked and whether other processes are attached",
				Action: withApp(lockStatusAction),
			},
		},
	}
}

func lockStatusAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	m := a.Mutex()
	if m == nil {
		_, err := fmt.Fprintln(output(cmd), "locking disabled")
		return err
	}

	key, err := procmutex.Key(a.Config().Store.File)
	if err != nil {
		return err
	}
	locked, err := m.IsLocked()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(output(cmd), "store:    %s\nlocks:    %s\nlocked:   %t\nattached: %t\n",
		a.Config().Store.File,
		filepath.Join(a.Config().Lock.Dir, key+".*"),
		locked,
		!m.IsInitialProcess(),
	)
	return err
}
