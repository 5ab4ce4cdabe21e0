// Command minifly runs a local, Docker-backed emulator of the Fly.io
// Machines API: apps, machines, internal DNS, LiteFS sidecars and a
// fly.toml deploy pipeline.
package main

import (
	"os"

	"github.com/minifly/minifly/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
