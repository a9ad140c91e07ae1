// Package main is the entry point for the blog publisher.
package main

import (
	"os"

	"github.com/jgchk/blog-sub001/cmd/blog-publisher/app"
	"github.com/jgchk/blog-sub001/internal/logger"
)

func main() {
	defer logger.Sync()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}
