package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/matheus3301/gravvy/internal/config"
	"github.com/matheus3301/gravvy/internal/daemon"
	"github.com/matheus3301/gravvy/internal/session"
)

func main() {
	accountFlag := flag.String("account", "", "account phone number (overrides config default)")
	tokenFlag := flag.String("token", "", "authentication token; defaults to $GRAVVY_TOKEN")
	flag.Parse()

	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err == nil {
		err = config.Overlay(cfg, config.NewViper())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	account, err := session.Resolve(*accountFlag, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	token := *tokenFlag
	if token == "" {
		token = os.Getenv("GRAVVY_TOKEN")
	}

	app := fx.New(
		daemon.Module(daemon.Params{Account: account, Token: token, Config: cfg}),
	)

	app.Run()
}
