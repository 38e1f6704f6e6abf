// Package main implements the command line of the encrypted lottery. It runs
// a node in the process and plays with it.
//
//	go run . lottery play --folder ~/.veilroll --first 3 --second 7
//	go run . lottery play --player bob --draws 5 --metrics 127.0.0.1:9100
//	go run . lottery config --folder ~/.veilroll
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/veilroll/cli"
	"go.dedis.ch/veilroll/cli/ucli"
	"go.dedis.ch/veilroll/contracts/lottery/controller"
)

var builder cli.Builder = ucli.NewBuilder("veilroll", ucli.WithUsage("encrypted two-number lottery"))
var printer io.Writer = os.Stderr

func main() {
	err := run(os.Args, controller.NewController())
	if err != nil {
		fmt.Fprintf(printer, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string, inits ...cli.Initializer) error {
	for _, init := range inits {
		init.SetCommands(builder)
	}

	return builder.Build().Run(args)
}
