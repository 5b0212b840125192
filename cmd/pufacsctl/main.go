// pufacsctl is the CLI client for querying a running pufacsd or
// pufacs-supplicant process's health/status endpoint.
package main

import "github.com/dantte-lp/pufacs/cmd/pufacsctl/commands"

func main() {
	commands.Execute()
}
