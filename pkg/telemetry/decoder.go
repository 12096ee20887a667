package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vinfast-community/ccar-command/internal/log"
)

// ResourceRef addresses one data point in a batched read request. The read endpoint expects a
// bare JSON array of these.
type ResourceRef struct {
	ObjectID   string `json:"objectId"`
	InstanceID string `json:"instanceId"`
	ResourceID string `json:"resourceId"`
}

// PingItem is one entry of the batched-read response. Value arrives as a string or a number
// depending on the resource type.
type PingItem struct {
	DeviceKey      string      `json:"deviceKey"`
	Value          interface{} `json:"value"`
	LastUpdateTime string      `json:"lastUpdateTime"`
}

// Snapshot maps friendly keys to decoded values. A snapshot is produced fresh on every poll and
// never merged with its predecessor: a missing key means the vehicle did not report that value
// this cycle.
type Snapshot map[string]interface{}

// BuildReadRequest emits one ResourceRef per wanted alias present in the mapping, in wanted
// order, along with a path-to-alias reverse map for decoding. When the mapping is empty the
// static fallback table is used instead; no reverse map exists in that mode and decoded keys
// fall back to raw paths.
func BuildReadRequest(mapping Mapping) ([]ResourceRef, map[string]string) {
	var refs []ResourceRef
	pathToAlias := map[string]string{}

	if len(mapping) > 0 {
		for _, alias := range WantedAliases {
			resource, ok := mapping[alias]
			if !ok {
				continue
			}
			refs = append(refs, ResourceRef{
				ObjectID:   resource.ObjectID,
				InstanceID: resource.InstanceID,
				ResourceID: resource.ResourceID,
			})
			pathToAlias[resource.Path] = alias
		}
		log.Debug("Telemetry: using %d dynamic resources from alias mappings", len(refs))
		return refs, pathToAlias
	}

	for _, path := range FallbackResources {
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) != 3 {
			continue
		}
		refs = append(refs, ResourceRef{ObjectID: parts[0], InstanceID: parts[1], ResourceID: parts[2]})
	}
	log.Debug("Telemetry: using %d fallback static resources", len(refs))
	return refs, nil
}

// canonicalPath reconstructs /objectId/instanceId/resourceId from a composite device key of the
// form {objectId}_{instanceId:05d}_{resourceId:05d}, stripping the zero padding. Keys that do
// not match the three-segment form are returned unchanged.
func canonicalPath(deviceKey string) string {
	parts := strings.Split(deviceKey, "_")
	if len(parts) != 3 {
		return deviceKey
	}
	ids := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return deviceKey
		}
		ids[i] = n
	}
	return fmt.Sprintf("/%d/%d/%d", ids[0], ids[1], ids[2])
}

// DecodeSnapshot turns raw read-response items into a Snapshot. Each device key is mapped back
// to its alias via pathToAlias (raw key if absent), then to a friendly key (lower-cased alias
// if unmapped). Values parseable as numbers are coerced to float64; anything else is kept as
// is. Items missing a device key or value are skipped, and duplicate keys overwrite earlier
// entries.
func DecodeSnapshot(items []PingItem, pathToAlias map[string]string) Snapshot {
	snapshot := Snapshot{}
	for _, item := range items {
		if item.DeviceKey == "" || item.Value == nil {
			continue
		}
		path := canonicalPath(item.DeviceKey)
		key := path
		if alias, ok := pathToAlias[path]; ok {
			if friendly, ok := aliasToKey[alias]; ok {
				key = friendly
			} else {
				key = strings.ToLower(alias)
			}
		}
		snapshot[key] = coerce(item.Value)
	}
	log.Debug("Telemetry: parsed %d values", len(snapshot))
	return snapshot
}

func coerce(value interface{}) interface{} {
	switch v := value.(type) {
	case float64:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	default:
		return value
	}
}
