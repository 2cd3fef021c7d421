// Command ekaya-ask sends a question to a running ekaya-analyst server and
// renders the streamed answer in the terminal.
package main

import (
	"os"

	"github.com/pterm/pterm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		os.Exit(1)
	}
}
