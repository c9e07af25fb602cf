package main

import (
	"os"

	"github.com/cwrk-planet/classroom-service/cmd/roomctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
