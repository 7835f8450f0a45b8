package main

import (
	"os"

	"github.com/autopeer-io/roverhub/cmd/roverctl/app"
)

func main() {
	if err := app.NewRoverctlCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
