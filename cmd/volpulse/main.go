package main

import (
	"os"

	"VolPulse/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
