package pairing

import (
	"encoding/base64"
	"strings"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/protocol"
)

// Keys that every pairing QR code must carry. K is the base64 shared key, ssid the pairing
// session id, vin the vehicle, timeout the ceremony deadline in seconds.
var requiredQRKeys = []string{"K", "ssid", "vin", "timeout"}

// ParseQR splits the QR payload ("K=...&ssid=...&vin=...&timeout=...&profileId=...") into a
// key/value map. Extra keys are preserved; missing required keys fail the ceremony.
func (e *Engine) ParseQR(content string) (map[string]string, error) {
	if err := e.requireState(StateIdle); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, e.fail(protocol.NewPairingError("empty QR code content"))
	}

	params := map[string]string{}
	for _, pair := range strings.Split(content, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		params[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	var missing []string
	for _, key := range requiredQRKeys {
		if _, ok := params[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, e.fail(protocol.NewPairingError("QR code missing required fields: %s", strings.Join(missing, ", ")))
	}

	e.qrParams = params
	e.state = StateQRParsed
	return params, nil
}

// Validate checks the parsed QR code against the session's vehicle. A VIN mismatch is fatal.
// If the QR carries a profileId and expectedUserID is supplied, the profileId is base64-decoded
// and compared, but a decode failure or mismatch is tolerated: the profile check has only ever
// been observed as advisory, and the real gate is the OTP.
func (e *Engine) Validate(expectedVIN, expectedUserID string) error {
	if err := e.requireState(StateQRParsed); err != nil {
		return err
	}
	qrVIN := e.qrParams["vin"]
	if qrVIN != expectedVIN {
		return e.fail(protocol.NewPairingError("QR VIN (%s) doesn't match vehicle VIN (%s)", qrVIN, expectedVIN))
	}

	if profileB64, ok := e.qrParams["profileId"]; ok && expectedUserID != "" {
		decoded, err := base64.StdEncoding.DecodeString(profileB64)
		if err != nil {
			log.Warning("QR profileId not decodable, continuing: %s", err)
		} else if string(decoded) != expectedUserID {
			log.Warning("QR profileId does not match user, continuing")
		}
	}

	e.vin = expectedVIN
	e.userID = expectedUserID
	e.state = StateValidated
	return nil
}
