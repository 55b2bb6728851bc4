package apiserver

import "github.com/kart-io/onboard/pkg/app"

const (
	appName        = "onboard-apiserver"
	appDescription = `Onboarding API server

Conversational customer onboarding backed by a semantic knowledge base.

This server provides:
  - Session-based onboarding conversations (/chat)
  - Thresholded semantic search over policy documents (/v1/kb/search)
  - The tool-call surface used by driving engines (/v1/tools/:name)`
)

// NewApp creates the apiserver application.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Onboarding API server"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}
