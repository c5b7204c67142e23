package main

import (
	"os"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/cmd/bridgetutorial/commands"
)

func main() {
	os.Exit(commands.Execute(os.Args[1:]))
}
