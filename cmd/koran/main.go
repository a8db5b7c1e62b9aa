package main

import (
	"os"

	"github.com/koran-teknologi/koran/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
