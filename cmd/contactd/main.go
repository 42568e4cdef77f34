// Command contactd runs the contact intake service and its operator tools.
//
// @title       Contact Intake API
// @version     1.0
// @description Contact form intake: validation, per-client hourly quota, multi-backend delivery and retrieval.
// @BasePath    /api
// @schemes     http https
package main

import (
	"os"

	"github.com/tbourn/go-contact-intake/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
