// Command tfsearch indexes a document set and answers term-frequency
// queries, either as a batch over requests.json or as an HTTP service.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/cmd/tfsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
