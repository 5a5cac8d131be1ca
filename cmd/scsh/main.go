package main

import (
	"os"
)

var (
	release = "0.0.0"
	commit  = ""
)

func main() {
	commandInit()

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
