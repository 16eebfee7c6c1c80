// Command mcprelay is the MCP reverse proxy entrypoint.
package main

import "github.com/mcprelay/mcprelay/cmd/mcprelay/cmd"

func main() {
	cmd.Execute()
}
