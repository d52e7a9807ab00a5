package main

import (
	"fmt"
	"os"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

// exitOnError prints a redacted error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", fault.Redact(err.Error()))
	os.Exit(1)
}
