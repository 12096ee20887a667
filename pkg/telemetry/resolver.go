package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/vinfast-community/ccar-command/internal/log"
)

const aliasCatalogEndpoint = "/modelmgmt/api/v2/vehicle-model/mobile-app/vehicle/get-alias"

// DefaultMappingVersion selects the alias-catalog schema revision requested by the mobile app.
const DefaultMappingVersion = "1.0"

// Requester is the narrow slice of the account session the telemetry package needs.
type Requester interface {
	// RawGet returns status and body without envelope handling.
	RawGet(ctx context.Context, endpoint string) (int, []byte, error)
	// Post returns the envelope's data field.
	Post(ctx context.Context, endpoint string, payload interface{}) (json.RawMessage, error)
	// VIN returns the session's vehicle identifier, or "" if not yet known.
	VIN() string
}

// Resource describes one alias-catalog entry: the addressing triple, the derived canonical
// path, and display metadata.
type Resource struct {
	Path       string
	ObjectID   string
	InstanceID string
	ResourceID string
	Name       string
	Units      string
	Type       string
}

// Mapping indexes catalog resources by alias name.
type Mapping map[string]Resource

// flexString decodes JSON numbers or strings into a string, since catalog fields arrive as
// either depending on server version.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type catalogEntry struct {
	Alias      string     `json:"alias"`
	ObjectID   flexString `json:"devObjID"`
	InstanceID flexString `json:"devObjInstID"`
	ResourceID flexString `json:"devRsrcID"`
	Name       string     `json:"name"`
	Units      string     `json:"units"`
	Type       string     `json:"type"`
}

// parseCatalog tolerates the response shapes the server has been observed returning: a bare
// list, {"resources": [...]}, or {"data": <list or {"resources": [...]}>}. Each known shape is
// tried in order; an unrecognized shape yields nil.
func parseCatalog(body []byte) []catalogEntry {
	var wrapped struct {
		Resources []catalogEntry  `json:"resources"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if len(wrapped.Data) > 0 {
			var inner struct {
				Resources []catalogEntry `json:"resources"`
			}
			if err := json.Unmarshal(wrapped.Data, &inner); err == nil && len(inner.Resources) > 0 {
				return inner.Resources
			}
			var list []catalogEntry
			if err := json.Unmarshal(wrapped.Data, &list); err == nil && len(list) > 0 {
				return list
			}
		}
		if len(wrapped.Resources) > 0 {
			return wrapped.Resources
		}
	}
	var direct []catalogEntry
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct
	}
	return nil
}

// Resolver fetches and caches the alias catalog. The cache is keyed by schema version and only
// invalidated by requesting a different version.
type Resolver struct {
	req Requester

	mu      sync.Mutex
	version string
	mapping Mapping
}

// NewResolver returns a Resolver bound to req.
func NewResolver(req Requester) *Resolver {
	return &Resolver{req: req}
}

// Resolve returns the alias mapping for the requested schema version. A cached mapping for the
// same version is returned without a network fetch. Resolution is advisory: an unreachable
// endpoint, a non-200 status, or an unusable body all yield an empty mapping and a nil error,
// and the caller falls back to the static resource table.
func (r *Resolver) Resolve(ctx context.Context, version string) Mapping {
	if version == "" {
		version = DefaultMappingVersion
	}
	r.mu.Lock()
	if len(r.mapping) > 0 && r.version == version {
		cached := r.mapping
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	endpoint := fmt.Sprintf("%s?version=%s", aliasCatalogEndpoint, url.QueryEscape(version))
	status, body, err := r.req.RawGet(ctx, endpoint)
	if err != nil {
		log.Warning("Failed to fetch alias catalog: %s", err)
		return Mapping{}
	}
	if status != http.StatusOK {
		log.Warning("Alias catalog returned status %d", status)
		return Mapping{}
	}

	entries := parseCatalog(body)
	mapping := Mapping{}
	for _, entry := range entries {
		if entry.Alias == "" {
			continue
		}
		objectID := string(entry.ObjectID)
		instanceID := string(entry.InstanceID)
		if instanceID == "" {
			instanceID = "0"
		}
		resourceID := string(entry.ResourceID)
		if resourceID == "" {
			resourceID = "0"
		}
		mapping[entry.Alias] = Resource{
			Path:       fmt.Sprintf("/%s/%s/%s", objectID, instanceID, resourceID),
			ObjectID:   objectID,
			InstanceID: instanceID,
			ResourceID: resourceID,
			Name:       entry.Name,
			Units:      entry.Units,
			Type:       entry.Type,
		}
	}

	if len(mapping) > 0 {
		r.mu.Lock()
		r.mapping = mapping
		r.version = version
		r.mu.Unlock()
		log.Debug("Loaded %d alias mappings from server", len(mapping))
		found := 0
		for _, alias := range WantedAliases {
			if _, ok := mapping[alias]; ok {
				found++
			}
		}
		log.Debug("Aliases found: %d, missing: %d", found, len(WantedAliases)-found)
	}
	return mapping
}

// ResolvedCount reports how many wanted aliases the mapping covers; purely diagnostic.
func ResolvedCount(m Mapping) int {
	found := 0
	for _, alias := range WantedAliases {
		if _, ok := m[alias]; ok {
			found++
		}
	}
	return found
}
