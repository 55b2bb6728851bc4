// Package main is the entry point for the knowledge base ingestion job.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/onboard/internal/ingest"
)

func main() {
	ingest.NewApp().Run()
}
