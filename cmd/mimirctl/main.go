// Command mimirctl is the operator CLI for Mimir: schema migrations, token
// minting, offline cohort checks and raw data plane calls.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
