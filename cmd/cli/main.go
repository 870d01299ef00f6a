package main

import (
	"context"
	"fmt"
	"os"

	"github.com/minmer/recreatio-sub002/internal/client/cli"
	"github.com/minmer/recreatio-sub002/internal/client/config"
	"github.com/minmer/recreatio-sub002/internal/flagx"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := flagx.Positional(os.Args[1:], []string{"-a", "-t", "-d", "-c", "-config"})
	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, cli.Describe(err))
		os.Exit(1)
	}
}
