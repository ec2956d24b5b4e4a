// Command simbatch generates and runs batches of cardiovascular simulations.
// See cmd/root.go for the subcommands.
package main

import (
	"github.com/myovent/simbatch/cmd"
)

func main() {
	cmd.Execute()
}
