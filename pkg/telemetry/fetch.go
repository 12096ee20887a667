package telemetry

import (
	"context"
	"encoding/json"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/protocol"
)

const pingEndpoint = "/ccaraccessmgmt/api/v1/telemetry/app/ping"

// Fetch runs one full read cycle: resolve the alias catalog, build the batched read request,
// call the ping endpoint (which returns last-known cached values without waking the vehicle),
// and decode the response.
//
// A nil snapshot with a nil error means telemetry is simply unavailable this cycle (no VIN yet,
// or no resource paths); a non-nil error is a request failure the caller may record.
func (r *Resolver) Fetch(ctx context.Context) (Snapshot, error) {
	if r.req.VIN() == "" {
		log.Info("Telemetry: no VIN available, skipping fetch")
		return nil, nil
	}

	mapping := r.Resolve(ctx, DefaultMappingVersion)
	refs, pathToAlias := BuildReadRequest(mapping)
	if len(refs) == 0 {
		log.Warning("No telemetry resource paths available")
		return nil, nil
	}

	log.Debug("Telemetry: requesting %d resources", len(refs))
	data, err := r.req.Post(ctx, pingEndpoint, refs)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		log.Debug("Telemetry: no data in response")
		return nil, nil
	}
	var items []PingItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, protocol.NewProtocolError(err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return DecodeSnapshot(items, pathToAlias), nil
}
