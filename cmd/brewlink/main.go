package main

import (
	"context"
	"fmt"
	"os"

	"brewlink/config"
	"brewlink/internal/logs"
	"brewlink/server"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (yaml, toml or json)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	app := &server.App{}
	if err := app.Initialize(cfg); err != nil {
		logs.Logger.Fatalf("init: %v", err)
	}
	if err := app.Run(context.Background()); err != nil {
		logs.Logger.Fatalf("run: %v", err)
	}
}
