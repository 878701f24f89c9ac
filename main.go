// SPDX-License-Identifier: MIT
package main

import (
	"os"
	"runtime"

	"audioviz/cmd"
	"audioviz/internal/build"
	"audioviz/internal/log"
)

// main parses the command line and hands off to the selected command.
// Startup and shutdown of the audio device, render loop and transports
// happen inside the command so deferred cleanup runs before exit.
func main() {
	// Development builds carry no ldflags; the defaults are good enough.
	if err := build.Initialize(); err != nil {
		log.Debugf("Build info incomplete: %v", err)
	}

	// One thread for the audio callback, one for the render loop and I/O.
	runtime.GOMAXPROCS(2)

	if err := cmd.Execute(os.Args[1:]); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
