package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/KNICEX/trade-alert/internal/service/dispatch"
	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/KNICEX/trade-alert/internal/service/stream"
)

func (s *Supervisor) States() map[market.Exchange]stream.State {
	res := make(map[market.Exchange]stream.State, len(s.connectors))
	for _, c := range s.connectors {
		res[c.Exchange()] = c.State()
	}
	return res
}

// Healthy reports whether every connector is Streaming with a non-empty
// symbol list. A feed that only carries depth subscriptions is not enough.
func (s *Supervisor) Healthy() bool {
	if len(s.connectors) == 0 {
		return false
	}
	for _, c := range s.connectors {
		if c.State() != stream.Streaming || len(s.universe.Symbols(c.Exchange())) == 0 {
			return false
		}
	}
	return true
}

type healthResponse struct {
	Healthy  bool                             `json:"healthy"`
	States   map[market.Exchange]stream.State `json:"states"`
	Symbols  map[market.Exchange]int          `json:"symbols"`
	Streams  map[market.Exchange]stream.Stats `json:"streams"`
	Pipeline PipelineStats                    `json:"pipeline"`
	Dispatch dispatch.Stats                   `json:"dispatch"`
}

// HealthHandler serves the connector states as JSON, 503 while Healthy is
// false.
func (s *Supervisor) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Healthy:  s.Healthy(),
			States:   s.States(),
			Symbols:  make(map[market.Exchange]int, len(s.connectors)),
			Streams:  make(map[market.Exchange]stream.Stats, len(s.connectors)),
			Pipeline: s.Stats(),
			Dispatch: s.dispatcher.Stats(),
		}
		for _, c := range s.connectors {
			resp.Symbols[c.Exchange()] = len(s.universe.Symbols(c.Exchange()))
			resp.Streams[c.Exchange()] = c.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if !resp.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}
