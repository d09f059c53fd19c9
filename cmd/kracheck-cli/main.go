package main

import "kracheck-backend/cmd/kracheck-cli/commands"

func main() {
	commands.Execute()
}
