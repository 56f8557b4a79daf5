package main

import (
	"os"

	"github.com/arturoeanton/design-copilot/internal/cli"
)

// Version information (set by the release build)
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
