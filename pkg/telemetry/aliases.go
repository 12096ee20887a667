// Package telemetry resolves the vehicle's alias catalog and decodes the compact batched-read
// wire format into named values.
//
// Aliases are stable, human-readable names for vehicle data points. Each one indirects to a
// numeric object/instance/resource triple from the underlying device-management protocol.
// Resolution is advisory: when the catalog is unavailable the reader falls back to a static
// table of paths observed in the mobile app.
package telemetry

// WantedAliases lists the signals the client requests, in request order. The names match the
// vendor's alias catalog.
var WantedAliases = []string{
	// Battery & charging
	"VEHICLE_STATUS_HV_BATTERY_SOC",
	"VEHICLE_STATUS_REMAINING_DISTANCE",
	"VEHICLE_STATUS_ODOMETER",
	"CHARGING_STATUS_CHARGING_STATUS",
	"CHARGING_STATUS_CHARGING_REMAINING_TIME",
	"CHARGE_CONTROL_CURRENT_TARGET_SOC",
	"CHARGE_CONTROL_SAMPLE_CHARGE_STATUS",
	// Vehicle status
	"VEHICLE_STATUS_IGNITION_STATUS",
	"VEHICLE_STATUS_GEAR_POSITION",
	"VEHICLE_STATUS_VEHICLE_SPEED",
	"VEHICLE_STATUS_HANDBRAKE_STATUS",
	// Climate
	"VEHICLE_STATUS_AMBIENT_TEMPERATURE",
	"CLIMATE_INFORMATION_DRIVER_TEMPERATURE",
	"CLIMATE_INFORMATION_STATUS",
	// Tire pressure
	"VEHICLE_STATUS_FRONT_LEFT_TIRE_PRESSURE",
	"VEHICLE_STATUS_FRONT_RIGHT_TIRE_PRESSURE",
	"VEHICLE_STATUS_REAR_LEFT_TIRE_PRESSURE",
	"VEHICLE_STATUS_REAR_RIGHT_TIRE_PRESSURE",
	// Doors
	"DOOR_AJAR_FRONT_LEFT_DOOR_STATUS",
	"DOOR_AJAR_FRONT_RIGHT_DOOR_STATUS",
	"DOOR_AJAR_REAR_LEFT_DOOR_STATUS",
	"DOOR_AJAR_REAR_RIGHT_DOOR_STATUS",
	"DOOR_TRUNK_DOOR_STATUS",
	// Remote control status
	"REMOTE_CONTROL_DOOR_STATUS",
	"REMOTE_CONTROL_BONNET_CONTROL_STATUS",
	"REMOTE_CONTROL_WINDOW_STATUS",
	"REMOTE_CONTROL_CHARGE_PORT_STATUS",
	// Location
	"LOCATION_LATITUDE",
	"LOCATION_LONGITUDE",
	"VEHICLE_BEARING_DEGREE",
}

// aliasToKey maps catalog aliases to the friendly snapshot keys exposed to consumers. Values
// are reported in raw vendor units (km, kPa, Celsius, enum codes); unit handling belongs to the
// consumer.
var aliasToKey = map[string]string{
	"VEHICLE_STATUS_HV_BATTERY_SOC":            "battery_level",
	"VEHICLE_STATUS_REMAINING_DISTANCE":        "range",
	"VEHICLE_STATUS_ODOMETER":                  "odometer",
	"CHARGING_STATUS_CHARGING_STATUS":          "charging_status",
	"CHARGING_STATUS_CHARGING_REMAINING_TIME":  "time_to_full",
	"CHARGE_CONTROL_CURRENT_TARGET_SOC":        "charge_limit",
	"CHARGE_CONTROL_SAMPLE_CHARGE_STATUS":      "sample_charge_status",
	"VEHICLE_STATUS_IGNITION_STATUS":           "ignition",
	"VEHICLE_STATUS_GEAR_POSITION":             "gear",
	"VEHICLE_STATUS_VEHICLE_SPEED":             "speed",
	"VEHICLE_STATUS_HANDBRAKE_STATUS":          "handbrake",
	"VEHICLE_STATUS_AMBIENT_TEMPERATURE":       "outside_temp",
	"CLIMATE_INFORMATION_DRIVER_TEMPERATURE":   "inside_temp",
	"CLIMATE_INFORMATION_STATUS":               "climate_status",
	"VEHICLE_STATUS_FRONT_LEFT_TIRE_PRESSURE":  "tire_pressure_fl",
	"VEHICLE_STATUS_FRONT_RIGHT_TIRE_PRESSURE": "tire_pressure_fr",
	"VEHICLE_STATUS_REAR_LEFT_TIRE_PRESSURE":   "tire_pressure_rl",
	"VEHICLE_STATUS_REAR_RIGHT_TIRE_PRESSURE":  "tire_pressure_rr",
	"DOOR_AJAR_FRONT_LEFT_DOOR_STATUS":         "door_fl",
	"DOOR_AJAR_FRONT_RIGHT_DOOR_STATUS":        "door_fr",
	"DOOR_AJAR_REAR_LEFT_DOOR_STATUS":          "door_rl",
	"DOOR_AJAR_REAR_RIGHT_DOOR_STATUS":         "door_rr",
	"DOOR_TRUNK_DOOR_STATUS":                   "trunk_status",
	"REMOTE_CONTROL_DOOR_STATUS":               "locked",
	"REMOTE_CONTROL_BONNET_CONTROL_STATUS":     "hood_status",
	"REMOTE_CONTROL_WINDOW_STATUS":             "window_status",
	"REMOTE_CONTROL_CHARGE_PORT_STATUS":        "plugged_in",
	"LOCATION_LATITUDE":                        "latitude",
	"LOCATION_LONGITUDE":                       "longitude",
	"VEHICLE_BEARING_DEGREE":                   "heading",
}

// FallbackResources are static candidate paths used when the alias catalog is unavailable.
// The vendor assigns custom object IDs in the 34xxx range; beyond the handful with known
// meanings, neighboring IDs are probed for whatever the vehicle reports.
var FallbackResources = []string{
	"/34196/0/0", // battery level (%)
	"/34196/0/1", // range estimate
	"/34197/0/0", // charging status
	"/34197/0/1", // charging power (kW)
	"/34197/0/2", // time to full charge
	"/34193/0/0", // charge limit (%)
	"/34200/0/0", // latitude
	"/34200/0/1", // longitude
	"/34201/0/0", // lock status
	"/34202/0/0", // climate status
	"/34189/0/0",
	"/34190/0/0",
	"/34191/0/0",
	"/34192/0/0",
	"/34194/0/0",
	"/34195/0/0",
	"/34198/0/0",
	"/34199/0/0",
	"/34203/0/0",
	"/34204/0/0",
	"/34205/0/0",
	"/34206/0/0",
	"/34207/0/0",
	"/34208/0/0",
	"/34209/0/0",
	"/34210/0/0",
}
