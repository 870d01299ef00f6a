// Command server runs the recreatio vault over gRPC.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/minmer/recreatio-sub002/internal/server"
	"github.com/minmer/recreatio-sub002/internal/server/config"
)

func main() {
	ctx := context.Background()

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "recreatio server: %v\n", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
