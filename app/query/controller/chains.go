package controller

import "net/http"

type chainsResponse struct {
	Chains []string `json:"chains"`
}

// HandleChains lists the chains of the current directory snapshot.
func (c *Controller) HandleChains(w http.ResponseWriter, r *http.Request) {
	chains := c.App.Chains.Snapshot()
	if chains == nil {
		chains = []string{}
	}
	c.App.Metrics.SuccessfulQueries.WithLabelValues(r.URL.Path).Inc()
	c.writeJSON(w, http.StatusOK, chainsResponse{Chains: chains})
}
