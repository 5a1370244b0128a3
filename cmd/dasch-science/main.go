// Command dasch-science queries the DASCH plate archive.
package main

import (
	"os"

	"github.com/kilupskalvis/dasch-science/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
