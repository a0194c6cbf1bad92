package main

import (
	"os"

	"github.com/smart-redact/redactd/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
