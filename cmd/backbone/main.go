package main

import (
	"os"

	"github.com/moontrade/backbone/app"
)

var (
	version = "0.0.0"
	gitsha  = ""
)

func main() {
	var conf app.Config
	conf.Name = "backbone"
	conf.Version = version
	conf.GitSHA = gitsha
	if err := app.Main(conf); err != nil {
		os.Exit(1)
	}
}
