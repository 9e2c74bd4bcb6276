// Command migrate drives an export or import of the engine described
// in this module: it is the thin CLI surface the rest of the tree
// treats as an external collaborator (§1) — flag parsing only, no
// business logic lives here. Grounded on the teacher's cmd/bd/main.go
// root-command wiring and its signal-aware rootCtx/rootCancel pair.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
