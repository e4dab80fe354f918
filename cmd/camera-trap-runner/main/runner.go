package main

// This file intentionally minimal so that the runner binary can be
// imported and executed elsewhere. Main content of the CLI is in
// cmd/camera-trap-runner/runner.go.

import (
	runner "github.com/TaiBIF/camera-trap/cmd/camera-trap-runner"
)

// Version content of this constant will be set at build time,
// using -ldflags, using output of the `git describe` command.
var Version = "undefined"

func main() {
	runner.Run(runner.BuildFlags{
		Version: Version,
	})
}
