// Package main implements tripsyncd, the offline coordination daemon.
// It watches device connectivity, maintains the manual offline override,
// and drains the retry queue of deferred sync work whenever the device is
// allowed back online.
package main

import (
	"fmt"
	"os"

	"github.com/guido-cesarano/tripsync/cmd/tripsyncd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
