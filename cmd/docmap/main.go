// Command docmap validates entity schemas and queries document stores.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/docmap/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
