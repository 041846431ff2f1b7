package controller

import (
	"net/http"

	"github.com/alitto/pond/v2"
	"github.com/chainclock/chainclock/app/query/types"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
)

// healthWorkers bounds concurrent dependency checks across requests.
const healthWorkers = 8

type Controller struct {
	App *types.App

	decoder *schema.Decoder
	pool    pond.Pool
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	decoder.ZeroEmpty(true)

	return &Controller{
		App:     app,
		decoder: decoder,
		pool:    pond.NewPool(healthWorkers),
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(c.withRequestLogging)

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)
	r.Handle("/metrics", c.App.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/chains", c.HandleChains).Methods(http.MethodGet)

	r.HandleFunc("/block", c.HandleBlock).Methods(http.MethodGet)

	r.HandleFunc("/uaw", c.HandleUniqueActiveWallets).Methods(http.MethodGet)
	r.HandleFunc("/uaw/history", c.HandleUniqueActiveWalletsHistory).Methods(http.MethodGet)

	r.HandleFunc("/{column:trace_calls|transaction_traces}", c.HandleAggregate).Methods(http.MethodGet)
	r.HandleFunc("/{column:trace_calls|transaction_traces}/history", c.HandleHistory).Methods(http.MethodGet)

	return r, nil
}
