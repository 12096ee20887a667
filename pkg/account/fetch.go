package account

import (
	"context"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/telemetry"
)

// Resolver returns the session's alias resolver, creating it on first use so the catalog cache
// survives across poll cycles.
func (s *Session) Resolver() *telemetry.Resolver {
	s.resolverOnce.Do(func() {
		s.resolver = telemetry.NewResolver(s)
	})
	return s.resolver
}

// VehicleData is the best-effort aggregate of everything the cloud knows about the account's
// vehicle. Each field is fetched independently; a failed sub-fetch leaves its field empty and
// records the error in Errors rather than aborting the aggregate.
type VehicleData struct {
	Vehicles  []Vehicle                `json:"vehicles"`
	Profile   map[string]interface{}   `json:"profile"`
	Telemetry telemetry.Snapshot       `json:"telemetry"`
	Locations []map[string]interface{} `json:"locations"`

	// Errors lists the non-fatal failures encountered, in fetch order.
	Errors []error `json:"-"`
}

// GetAllData fetches vehicles, profile, telemetry, and saved locations sequentially. Each
// sub-fetch tolerates a single token refresh (the request is reissued once after
// protocol.ErrRetryAfterRefresh). The aggregate never fails; inspect Errors for what was
// skipped.
func (s *Session) GetAllData(ctx context.Context) *VehicleData {
	result := &VehicleData{
		Vehicles:  []Vehicle{},
		Profile:   map[string]interface{}{},
		Locations: []map[string]interface{}{},
	}

	if err := s.retryOnce(func() error {
		vehicles, err := s.GetVehicles(ctx)
		if err == nil {
			result.Vehicles = vehicles
		}
		return err
	}); err != nil {
		log.Warning("Failed to get vehicles: %s", err)
		result.Errors = append(result.Errors, err)
	}

	if err := s.retryOnce(func() error {
		profile, err := s.GetProfile(ctx)
		if err == nil {
			result.Profile = profile
		}
		return err
	}); err != nil {
		log.Warning("Failed to get profile: %s", err)
		result.Errors = append(result.Errors, err)
	}

	resolver := s.Resolver()
	if err := s.retryOnce(func() error {
		snapshot, err := resolver.Fetch(ctx)
		if err == nil {
			result.Telemetry = snapshot
		}
		return err
	}); err != nil {
		log.Debug("Telemetry unavailable: %s", err)
		result.Errors = append(result.Errors, err)
	}

	if err := s.retryOnce(func() error {
		locations, err := s.GetLocations(ctx)
		if err == nil {
			result.Locations = locations
		}
		return err
	}); err != nil {
		log.Debug("Locations unavailable: %s", err)
		result.Errors = append(result.Errors, err)
	}

	return result
}
