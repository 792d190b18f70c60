package main

import (
	"context"
	"log"
	"os"

	"github.com/zelebiz/zelebiz/internal/buildinfo"
	"github.com/zelebiz/zelebiz/internal/client/cli"
	"github.com/zelebiz/zelebiz/internal/client/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()

	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}

}
