package pairing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/protocol"
)

const (
	verifySessionEndpoint = "/ccaraccessmgmt/api/v1/pairing/app/verify-session"
	sendPairDataEndpoint  = "/ccaraccessmgmt/api/v1/pairing/app/send-pair-data"
)

func (e *Engine) post(ctx context.Context, accessToken, endpoint string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	url := fmt.Sprintf("https://%s%s", e.host, endpoint)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	response, err := e.client.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()
	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return response.StatusCode, nil, err
	}
	return response.StatusCode, responseBody, nil
}

type verifySessionRequest struct {
	SSID        string  `json:"ssid"`
	PhoneNumber *string `json:"phoneNumber"`
	Email       *string `json:"email"`
	Retry       bool    `json:"retry"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// VerifySession asks the server to dispatch an OTP to the user's phone or email. Success has no
// payload beyond "OTP sent"; set retry to request a fresh code for the same session.
func (e *Engine) VerifySession(ctx context.Context, accessToken, sessionID, phone, email string, retry bool) error {
	if err := e.requireState(StateEncryptedReady); err != nil {
		// A retry resends the code for a session whose first OTP was already triggered.
		if !retry || e.state != StateOTPTriggered {
			return err
		}
	}
	payload := verifySessionRequest{
		SSID:        sessionID,
		PhoneNumber: optional(phone),
		Email:       optional(email),
		Retry:       retry,
	}
	status, body, err := e.post(ctx, accessToken, verifySessionEndpoint, payload)
	if err != nil {
		return e.fail(protocol.NewPairingError("verify-session connection error: %s", err))
	}
	if status != http.StatusOK {
		log.Error("Verify session failed: %d - %s", status, body)
		return e.fail(protocol.NewPairingError("verify-session returned %d: %s", status, body))
	}
	e.sessionID = sessionID
	e.state = StateOTPTriggered
	log.Info("Verify session successful - OTP sent")
	return nil
}

type pairDataRequest struct {
	EncryptedCSR string  `json:"encryptedCSR"`
	OTP          string  `json:"otp"`
	PhoneNumber  *string `json:"phoneNumber"`
	Email        *string `json:"email"`
	Seed         string  `json:"seed"`
	SessionID    string  `json:"sessionId"`
}

// SendPairData submits the enrollment payload with the user's OTP. On success the server
// returns the share key used for HMAC command authentication; the engine decodes and stores it
// and becomes paired. A response without the share-key field still counts as paired, but
// signing will fail until key material arrives by other means — surfaced in IsPaired.
func (e *Engine) SendPairData(ctx context.Context, accessToken, otp, phone, email string) (map[string]interface{}, error) {
	if err := e.requireState(StateOTPTriggered); err != nil {
		return nil, err
	}
	payload := pairDataRequest{
		EncryptedCSR: e.encryptedCSR,
		OTP:          otp,
		PhoneNumber:  optional(phone),
		Email:        optional(email),
		Seed:         e.seed,
		SessionID:    e.sessionID,
	}
	status, body, err := e.post(ctx, accessToken, sendPairDataEndpoint, payload)
	if err != nil {
		return nil, e.fail(protocol.NewPairingError("send-pair-data connection error: %s", err))
	}
	if status != http.StatusOK {
		log.Error("Send pair data failed: %d - %s", status, body)
		return nil, e.fail(protocol.NewPairingError("send-pair-data returned %d: %s", status, body))
	}

	var response struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, e.fail(protocol.NewPairingError("malformed pairing response: %s", err))
	}

	if shareKeyB64, ok := response.Data["base64EncryptedShareKey"].(string); ok && shareKeyB64 != "" {
		e.sharedKeyB64 = shareKeyB64
		sharedKey, err := base64.StdEncoding.DecodeString(shareKeyB64)
		if err != nil {
			log.Warning("Failed to decode shared key: %s", err)
		} else {
			e.sharedKey = sharedKey
		}
	}
	e.state = StatePaired
	log.Info("Pairing successful")
	return response.Data, nil
}
