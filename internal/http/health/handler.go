package health

import (
	"encoding/json"
	"net/http"
)

// Response is the payload for the health endpoint.
type Response struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// NewHandler returns a plain HTTP handler for the health check endpoint.
// sessions reports the number of open sessions and may be nil.
func NewHandler(version string, sessions func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := Response{Status: "healthy", Version: version}
		if sessions != nil {
			resp.Sessions = sessions()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
