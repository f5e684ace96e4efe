// The main package for the leadscout executable.
package main

import (
	"github.com/mhertel/leadscout/cmd"
)

func main() {
	cmd.Execute()
}
