// Command voiceclient talks to the flight voice server from a terminal.
//
// Usage:
//
//	voiceclient [flags] ask <audio-file>
//	voiceclient [flags] ping
//
// An audio file is streamed as a live recording would be, the pipeline
// events are printed as they arrive, and synthesized speech is written to
// the --out file in playback order.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
