package main

import (
	"context"
	"log"
	"os"

	"github.com/dkarpov/syncbox/internal/app"
	"github.com/dkarpov/syncbox/internal/buildinfo"
	"github.com/dkarpov/syncbox/internal/config"
	"github.com/dkarpov/syncbox/internal/flagx"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := a.Run(ctx, flagx.PositionalArgs(os.Args[1:])); err != nil {
		log.Fatalf("%v", err)
	}
}
