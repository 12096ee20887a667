package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

// fakeRequester satisfies Requester with canned responses and call counting.
type fakeRequester struct {
	vin         string
	getStatus   int
	getBody     []byte
	getErr      error
	getCalls    int
	postData    json.RawMessage
	postErr     error
	postCalls   int
	lastPayload interface{}
}

func (f *fakeRequester) RawGet(ctx context.Context, endpoint string) (int, []byte, error) {
	f.getCalls++
	return f.getStatus, f.getBody, f.getErr
}

func (f *fakeRequester) Post(ctx context.Context, endpoint string, payload interface{}) (json.RawMessage, error) {
	f.postCalls++
	f.lastPayload = payload
	return f.postData, f.postErr
}

func (f *fakeRequester) VIN() string {
	return f.vin
}

const catalogEntries = `[
	{"alias": "VEHICLE_STATUS_HV_BATTERY_SOC", "devObjID": 34196, "devObjInstID": 0, "devRsrcID": 0, "units": "%"},
	{"alias": "VEHICLE_STATUS_ODOMETER", "devObjID": "34190", "devObjInstID": "0", "devRsrcID": "2", "units": "km"},
	{"alias": "", "devObjID": 1, "devObjInstID": 1, "devRsrcID": 1}
]`

func TestResolveCatalogShapes(t *testing.T) {
	bodies := map[string]string{
		"bare list":         catalogEntries,
		"resources wrapper": fmt.Sprintf(`{"resources": %s}`, catalogEntries),
		"data list":         fmt.Sprintf(`{"code": 200000, "data": %s}`, catalogEntries),
		"data with wrapper": fmt.Sprintf(`{"code": 0, "data": {"resources": %s}}`, catalogEntries),
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			req := &fakeRequester{getStatus: http.StatusOK, getBody: []byte(body)}
			mapping := NewResolver(req).Resolve(context.Background(), "")
			if len(mapping) != 2 {
				t.Fatalf("got %d mappings, want 2 (entry with empty alias skipped)", len(mapping))
			}
			soc, ok := mapping["VEHICLE_STATUS_HV_BATTERY_SOC"]
			if !ok {
				t.Fatal("battery SOC alias missing")
			}
			if soc.Path != "/34196/0/0" {
				t.Errorf("Path = %q, want /34196/0/0", soc.Path)
			}
			if soc.ObjectID != "34196" || soc.InstanceID != "0" || soc.ResourceID != "0" {
				t.Errorf("triple = (%q, %q, %q)", soc.ObjectID, soc.InstanceID, soc.ResourceID)
			}
		})
	}
}

func TestResolveCaches(t *testing.T) {
	req := &fakeRequester{getStatus: http.StatusOK, getBody: []byte(catalogEntries)}
	r := NewResolver(req)
	first := r.Resolve(context.Background(), DefaultMappingVersion)
	second := r.Resolve(context.Background(), DefaultMappingVersion)
	if req.getCalls != 1 {
		t.Errorf("catalog fetched %d times, want 1", req.getCalls)
	}
	if len(first) != len(second) {
		t.Errorf("cached mapping differs: %d vs %d", len(first), len(second))
	}

	// A different schema version invalidates the cache.
	r.Resolve(context.Background(), "2.0")
	if req.getCalls != 2 {
		t.Errorf("catalog fetched %d times after version change, want 2", req.getCalls)
	}
}

func TestResolveFailuresYieldEmptyMapping(t *testing.T) {
	cases := map[string]*fakeRequester{
		"server error":  {getStatus: http.StatusInternalServerError, getBody: []byte("down")},
		"transport":     {getErr: fmt.Errorf("connection refused")},
		"unusable body": {getStatus: http.StatusOK, getBody: []byte(`{"unexpected": true}`)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			mapping := NewResolver(req).Resolve(context.Background(), DefaultMappingVersion)
			if len(mapping) != 0 {
				t.Errorf("got %d mappings, want 0", len(mapping))
			}
		})
	}
}

func TestResolveFailureIsNotCached(t *testing.T) {
	req := &fakeRequester{getStatus: http.StatusInternalServerError}
	r := NewResolver(req)
	r.Resolve(context.Background(), DefaultMappingVersion)
	req.getStatus = http.StatusOK
	req.getBody = []byte(catalogEntries)
	mapping := r.Resolve(context.Background(), DefaultMappingVersion)
	if len(mapping) != 2 {
		t.Errorf("recovered mapping has %d entries, want 2", len(mapping))
	}
	if req.getCalls != 2 {
		t.Errorf("catalog fetched %d times, want 2", req.getCalls)
	}
}

func TestResolvedCount(t *testing.T) {
	mapping := Mapping{
		"VEHICLE_STATUS_HV_BATTERY_SOC": {Path: "/34196/0/0"},
		"NOT_A_WANTED_ALIAS":            {Path: "/1/1/1"},
	}
	if n := ResolvedCount(mapping); n != 1 {
		t.Errorf("ResolvedCount = %d, want 1", n)
	}
}

func TestFetchWithoutVIN(t *testing.T) {
	req := &fakeRequester{}
	snapshot, err := NewResolver(req).Fetch(context.Background())
	if snapshot != nil || err != nil {
		t.Errorf("Fetch without VIN = (%v, %v), want (nil, nil)", snapshot, err)
	}
	if req.getCalls+req.postCalls != 0 {
		t.Error("Fetch without VIN should not touch the network")
	}
}

func TestFetchDecodesPing(t *testing.T) {
	req := &fakeRequester{
		vin:       "VF1TEST000000001",
		getStatus: http.StatusOK,
		getBody:   []byte(catalogEntries),
		postData:  json.RawMessage(`[{"deviceKey": "34196_00000_00000", "value": "87", "lastUpdateTime": "2026-08-30T12:00:00Z"}]`),
	}
	snapshot, err := NewResolver(req).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %s", err)
	}
	if got := snapshot["battery_level"]; got != 87.0 {
		t.Errorf("battery_level = %v (%T), want 87.0", got, got)
	}

	refs, ok := req.lastPayload.([]ResourceRef)
	if !ok {
		t.Fatalf("ping payload is %T, want []ResourceRef", req.lastPayload)
	}
	if len(refs) != 2 {
		t.Errorf("requested %d resources, want the 2 resolved aliases", len(refs))
	}
}

func TestFetchPingFailure(t *testing.T) {
	req := &fakeRequester{
		vin:       "VF1TEST000000001",
		getStatus: http.StatusInternalServerError,
		postErr:   fmt.Errorf("ping down"),
	}
	snapshot, err := NewResolver(req).Fetch(context.Background())
	if snapshot != nil {
		t.Errorf("snapshot = %v, want nil", snapshot)
	}
	if err == nil {
		t.Fatal("expected ping failure to surface")
	}
	// With the catalog down, the static fallback table still produces a request.
	refs, ok := req.lastPayload.([]ResourceRef)
	if !ok || len(refs) != len(FallbackResources) {
		t.Errorf("fallback request has %d refs, want %d", len(refs), len(FallbackResources))
	}
}
