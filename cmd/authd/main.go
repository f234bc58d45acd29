// Package main is the entry point for authd, the verified account service.
package main

import (
	"os"

	"github.com/goliatone/go-verified-auth/cmd/authd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
