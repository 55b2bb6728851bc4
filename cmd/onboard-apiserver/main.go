// Package main is the entry point for the onboarding API server.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/onboard/internal/apiserver"
)

func main() {
	apiserver.NewApp().Run()
}
