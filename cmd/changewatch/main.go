// Command changewatch detects changes between snapshots of scraped data.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/changewatch/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()
	if err == nil {
		return cli.ExitSuccess
	}

	// Commands report their own ExitErrors; anything else comes from cobra
	// itself (unknown command, missing flag).
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return cli.ExitCommandError
}
