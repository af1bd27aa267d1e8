package main

import (
	"github.com/sidkik/ftpsync/cmd"
	"github.com/sidkik/ftpsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
