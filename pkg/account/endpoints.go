package account

import (
	"context"
	"encoding/json"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/protocol"
)

const (
	vehiclesEndpoint  = "/ccarusermgnt/api/v1/user-vehicle"
	profileEndpoint   = "/ccarusermgnt/api/v1/auth0/account/profile"
	locationsEndpoint = "/ccarusermgnt/api/v1/location-favorite"
)

// Vehicle is one entry of the account-vehicle listing. The server returns more fields than
// listed here; unknown ones are preserved in Extra for diagnostics.
type Vehicle struct {
	VinCode   string `json:"vinCode"`
	UserID    string `json:"userId"`
	ModelName string `json:"modelName"`
	CarName   string `json:"carName"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (v *Vehicle) UnmarshalJSON(data []byte) error {
	type alias Vehicle
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*v = Vehicle(decoded)
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err == nil {
		delete(extra, "vinCode")
		delete(extra, "userId")
		delete(extra, "modelName")
		delete(extra, "carName")
		v.Extra = extra
	}
	return nil
}

// GetVehicles lists the account's vehicles. The first entry pins the session's VIN and player
// identifier; once set they are never overwritten (first wins, multi-vehicle accounts are not
// supported).
func (s *Session) GetVehicles(ctx context.Context) ([]Vehicle, error) {
	data, err := s.Get(ctx, vehiclesEndpoint)
	if err != nil {
		return nil, err
	}
	var vehicles []Vehicle
	if err := json.Unmarshal(data, &vehicles); err != nil {
		return nil, protocol.NewProtocolError(err)
	}
	if len(vehicles) > 0 {
		s.mu.Lock()
		if s.vin == "" {
			s.vin = vehicles[0].VinCode
			s.userID = vehicles[0].UserID
		}
		s.mu.Unlock()
	}
	return vehicles, nil
}

// GetProfile fetches the account profile.
func (s *Session) GetProfile(ctx context.Context) (map[string]interface{}, error) {
	data, err := s.Get(ctx, profileEndpoint)
	if err != nil {
		return nil, err
	}
	var profile map[string]interface{}
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, protocol.NewProtocolError(err)
	}
	return profile, nil
}

// GetLocations fetches the account's saved favorite locations.
func (s *Session) GetLocations(ctx context.Context) ([]map[string]interface{}, error) {
	data, err := s.Get(ctx, locationsEndpoint)
	if err != nil {
		return nil, err
	}
	var locations []map[string]interface{}
	if err := json.Unmarshal(data, &locations); err != nil {
		log.Debug("Locations payload not a list: %s", err)
		return nil, protocol.NewProtocolError(err)
	}
	return locations, nil
}
