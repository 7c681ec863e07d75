package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/florianilch/keyprovider/internal/app"
)

func oauthCommand() *cli.Command {
	return &cli.Command{
		Name:  "oauth",
		Usage: "Use stored OAuth2 client credentials",
		Commands: []*cli.Command{
			{
				Name:      "client-id",
				Usage:     "Print the stored client id",
				ArgsUsage: "PROVIDER SERVICE",
				Action:    withApp(oauthClientIDAction),
			},
			{
				Name:      "token",
				Usage:     "Exchange the stored refresh token and print an access token",
				ArgsUsage: "PROVIDER SERVICE",
				Flags: append(schemeFlags(),
					&cli.StringFlag{
						Name:     "token-url",
						Usage:    "token endpoint of the authorization server",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "scope",
						Usage: "scope to request (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "basic-auth",
						Usage: "send client credentials with HTTP basic auth instead of the request body",
					},
				),
				Action: withApp(oauthTokenAction),
			},
		},
	}
}

func oauthClientIDAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	args, err := exactArgs(cmd, 2)
	if err != nil {
		return err
	}

	cfg, err := a.Provider().OAuth2Config(ctx, args[0], args[1], oauth2.Endpoint{})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output(cmd), cfg.ClientID)
	return err
}

func oauthTokenAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	args, err := exactArgs(cmd, 2)
	if err != nil {
		return err
	}

	endpoint := oauth2.Endpoint{
		TokenURL:  cmd.String("token-url"),
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if cmd.Bool("basic-auth") {
		endpoint.AuthStyle = oauth2.AuthStyleInHeader
	}

	ts, err := a.TokenSource(ctx, args[0], args[1], endpoint,
		cmd.String("scheme"), cmd.String("scheme-key"), cmd.StringSlice("scope")...)
	if err != nil {
		return err
	}

	token, err := ts.Token()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output(cmd), token.AccessToken)
	return err
}
