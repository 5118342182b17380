package main

import "gfxrelay/cmd/relay-cli/command"

func main() {
	command.Execute()
}
