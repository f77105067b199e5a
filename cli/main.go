// Command hwctl is the HoistwayWatch operator CLI.
package main

import (
	"os"

	"github.com/joshuaworth/hoistwaywatch/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
