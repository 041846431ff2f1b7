package controller

import (
	"net/http"

	perr "github.com/chainclock/chainclock/pkg/errors"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error     perr.Wire `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response
func (c *Controller) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to its status code and writes the structured payload.
// Server side failures are logged with their cause; the client only sees the message.
func (c *Controller) writeError(w http.ResponseWriter, r *http.Request, err error) int {
	status := perr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		c.App.Logger.Error("Request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("code", perr.CodeOf(err).String()),
			zap.Error(err))
	}
	c.writeJSON(w, status, errorResponse{Error: perr.WireFrom(err), RequestID: RequestID(r.Context())})
	return status
}
