// Command swing runs the scan pipeline from the command line: scans, stop passes,
// sizing, expectancy and data imports against the same databases as the server.
package main

import (
	"os"

	"github.com/aristath/swingsentinel/cmd/swing/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
