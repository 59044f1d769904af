// sharedrop - command-line client for a drop-and-share file server
package main

import (
	"os"

	"github.com/sharedrop/sharedrop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
