package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pigeon-im/pigeon/internal/app"
	"github.com/pigeon-im/pigeon/internal/session"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	debugFlag := flag.Bool("debug", false, "log reconciliation traces to the profile log")
	headlessFlag := flag.Bool("headless", false, "run the sync engine without the TUI")
	flag.Parse()

	profileName := session.Resolve(*profileFlag)
	if err := session.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fxApp := fx.New(
		app.Module(app.Params{
			ProfileName: profileName,
			Debug:       *debugFlag,
			Headless:    *headlessFlag,
		}),
		fx.NopLogger,
	)

	fxApp.Run()
}
