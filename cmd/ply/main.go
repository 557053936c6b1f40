// Command ply manages a set of downstream patches maintained on top of
// a moving upstream source tree.
package main

import (
	"fmt"
	"os"

	"github.com/rconradharris/ply/cmd/ply/cmd"
)

func main() {
	if err := cmd.Root().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
