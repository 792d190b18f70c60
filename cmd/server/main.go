package main

import (
	"context"
	"log"
	"os"

	"github.com/zelebiz/zelebiz/internal/buildinfo"
	"github.com/zelebiz/zelebiz/internal/server"
	"github.com/zelebiz/zelebiz/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
