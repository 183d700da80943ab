package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/trustbridge/ngoverify/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug       bool                    `help:"Enable debug mode."`
		Version     kong.VersionFlag
		Serve       commands.ServeCmd       `cmd:"" help:"Start the verification API server"`
		Migrate     commands.MigrateCmd     `cmd:"" help:"Create database tables for the configured store"`
		CreateAdmin commands.CreateAdminCmd `cmd:"" help:"Create an admin account"`
		List        commands.ListCmd        `cmd:"" help:"List applications as JSON"`
	}
)

func main() {
	// a missing .env is fine, flags and the environment still apply
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("ngoverify"),
		kong.Description("NGO identity verification service"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
