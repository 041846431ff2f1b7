package controller

import (
	"context"
	"net/http"
	"time"

	perr "github.com/chainclock/chainclock/pkg/errors"
	"github.com/chainclock/chainclock/pkg/query"
	"github.com/gorilla/mux"
)

// buildFunc compiles a validated filter into query text.
type buildFunc func(f query.Filter) (string, error)

// shapeFunc turns the store rows into the response body.
type shapeFunc func(f query.Filter, rows []query.Row) (any, error)

// endpoint describes one query route.
type endpoint struct {
	opts  query.FilterOptions
	build buildFunc
	shape shapeFunc
}

// HandleBlock looks up blocks. Without a chain it returns up to limit blocks per known chain.
func (c *Controller) HandleBlock(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, endpoint{
		opts:  query.FilterOptions{MaxLimit: c.App.MaxElementsQueried()},
		build: c.App.Builder.BuildBlockQuery,
		shape: rawRows,
	})
}

// HandleAggregate aggregates trace_calls or transaction_traces per chain.
func (c *Controller) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	column := query.AggregateColumn(mux.Vars(r)["column"])
	c.serve(w, r, endpoint{
		opts: query.FilterOptions{MaxLimit: c.App.MaxElementsQueried(), WithFunction: true},
		build: func(f query.Filter) (string, error) {
			return c.App.Builder.BuildAggregateQuery(f, column)
		},
		shape: aggregate,
	})
}

// HandleHistory buckets trace_calls or transaction_traces per chain over a range.
func (c *Controller) HandleHistory(w http.ResponseWriter, r *http.Request) {
	column := query.AggregateColumn(mux.Vars(r)["column"])
	c.serve(w, r, endpoint{
		opts: query.FilterOptions{
			MaxLimit:        c.App.MaxElementsQueried(),
			DefaultFunction: query.FunctionSum,
			WithFunction:    true,
			WithRange:       true,
		},
		build: func(f query.Filter) (string, error) {
			return c.App.Builder.BuildHistoryQuery(f, column)
		},
		shape: history,
	})
}

// HandleUniqueActiveWallets counts distinct active wallets per chain.
func (c *Controller) HandleUniqueActiveWallets(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, endpoint{
		opts:  query.FilterOptions{MaxLimit: c.App.MaxElementsQueried()},
		build: c.App.Builder.BuildUniqueActiveWalletsQuery,
		shape: aggregate,
	})
}

// HandleUniqueActiveWalletsHistory buckets distinct active wallets per chain over a range.
func (c *Controller) HandleUniqueActiveWalletsHistory(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, endpoint{
		opts:  query.FilterOptions{MaxLimit: c.App.MaxElementsQueried(), WithRange: true},
		build: c.App.Builder.BuildUniqueActiveWalletsHistoryQuery,
		shape: history,
	})
}

// serve runs the decode, validate, build, execute and shape pipeline shared by every query route.
func (c *Controller) serve(w http.ResponseWriter, r *http.Request, e endpoint) {
	path := r.URL.Path
	m := c.App.Metrics
	start := time.Now()

	body, err := c.run(r, e)
	m.QueryDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		m.FailedQueries.WithLabelValues(path).Inc()
		if status := c.writeError(w, r, err); status < http.StatusInternalServerError {
			m.ValidationErrors.Inc()
		} else {
			m.ServerErrors.Inc()
		}
		return
	}

	m.SuccessfulQueries.WithLabelValues(path).Inc()
	c.writeJSON(w, http.StatusOK, body)
}

func (c *Controller) run(r *http.Request, e endpoint) (any, error) {
	var params query.Params
	if err := c.decoder.Decode(&params, r.URL.Query()); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeInvalidParameter, "malformed query string")
	}

	f, err := query.ParseFilter(params, e.opts)
	if err != nil {
		return nil, err
	}
	if err := c.App.Builder.ResolveChain(f); err != nil {
		return nil, err
	}

	text, err := e.build(f)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), c.App.QueryTimeout())
	defer cancel()

	rows, err := c.App.Executor.Query(ctx, text)
	if err != nil {
		return nil, err
	}
	c.App.Metrics.RowsReceived.Add(float64(len(rows)))

	return e.shape(f, rows)
}

func rawRows(_ query.Filter, rows []query.Row) (any, error) {
	return rows, nil
}

func aggregate(_ query.Filter, rows []query.Row) (any, error) {
	return query.NormalizeAggregate(rows)
}

func history(f query.Filter, rows []query.Row) (any, error) {
	r := f.Range
	if r == "" {
		r = query.DefaultRange
	}
	return query.NormalizeHistory(rows, r.Interval())
}
