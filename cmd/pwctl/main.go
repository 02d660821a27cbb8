// Package main is the entry point for the pwctl CLI client.
package main

import (
	"pricewatch/cmd/pwctl/cmd"
)

func main() {
	cmd.Execute()
}
