package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/platinummonkey/lumen/pkg/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(cli.StdEnv(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrSignatureMismatch) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
