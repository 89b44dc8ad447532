//go:build linux

package agent

import (
	"net/http"

	"github.com/go-kit/log/level"

	"github.com/nova-systems/cachectl/pkg/transport"
	"github.com/nova-systems/cachectl/pkg/types"
)

// handleConfig serves POST /config: it decodes an AllocationMap, applies
// the memory enforcer then the bandwidth enforcer for each app, records the
// map for the next estimation cycle's currentCachePages lookup, and always
// answers 202 Accepted — per-tenant enforcement errors are logged, not
// surfaced as a failed request.
func (a *Agent) handleConfig(w http.ResponseWriter, r *http.Request) {
	var alloc types.AllocationMap
	if err := transport.DecodeJSON(r, &alloc); err != nil {
		transport.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	a.allocMu.Lock()
	for id, target := range alloc {
		a.alloc[id] = target
	}
	a.allocMu.Unlock()

	ctx := r.Context()
	for id, target := range alloc {
		if err := a.applyAllocation(ctx, id, target); err != nil {
			level.Warn(a.logger).Log("msg", "apply allocation failed", "app_id", id, "err", err)
		}
	}

	if a.metrics != nil {
		a.metrics.ConfigUpdates.Inc()
	}
	transport.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
