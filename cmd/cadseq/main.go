// Command cadseq harvests parametric design histories from the document
// service and converts them into exchange-format artifacts.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
