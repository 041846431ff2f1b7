package query

import (
	"net/http"

	"github.com/chainclock/chainclock/app/query/controller"
	"github.com/chainclock/chainclock/app/query/types"
)

// NewServer builds the router and attaches the HTTP server to app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	app.Server = &http.Server{
		Addr:         app.Config.Server.Addr,
		Handler:      controller.WithCORS(router),
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}
	return nil
}
