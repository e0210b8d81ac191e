// Command ledgerctl is the operator CLI for the inventory ledger.
package main

import (
	"fmt"
	"os"

	"github.com/warp/inventory-ledger/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
