// Command wokwi prepares firmware projects for the Wokwi simulator: setup
// writes wokwi.toml from detected build output, diagram downloads a
// project's diagram.json.
package main

import (
	"os"

	"github.com/rananth45/wokwi-autoscript/cmd/wokwi/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
