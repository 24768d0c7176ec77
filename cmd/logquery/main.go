package main

import (
	"github.com/fanzha/logquery/cmd/logquery/commands"
)

func main() {
	commands.Execute()
}
