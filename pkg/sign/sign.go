// Package sign produces and dispatches dual-signed remote-control commands.
//
// Every command carries an RSA-PKCS1v15-SHA256 signature from the enrollment private key and an
// HMAC-SHA256 signature from the server-issued share key, both over the timestamp concatenated
// with the base64 message body. The fresh millisecond timestamp is covered by both signatures,
// so a captured payload cannot be replayed against a later server-side timestamp check.
package sign

import (
	"bytes"
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/pairing"
	"github.com/vinfast-community/ccar-command/pkg/protocol"
)

const commandEndpoint = "/ccaraccessmgmt/api/v2/remote/app/command"

// CommandTimeout bounds command dispatch. Commands may wake the vehicle and take much longer
// than reads.
const CommandTimeout = 60 * time.Second

// wakeUpBudgetMillis is forwarded to the server as the vehicle wake-up allowance.
const wakeUpBudgetMillis = 60000

// ControlAliases maps known control points to their device keys, as observed in the mobile app.
var ControlAliases = map[string]string{
	"CLIMATE_CONTROL_AIR_CONDITION_ENABLE": "3416_0_5850",
	"CLIMATE_CONTROL_TARGET_TEMPERATURE":   "3416_0_5851",
	"VEHICLE_CONTROL_DOOR_LOCK":            "3415_0_5850",
	"VEHICLE_CONTROL_DOOR_UNLOCK":          "3415_0_5851",
	"VEHICLE_CONTROL_HORN":                 "3417_0_5850",
	"VEHICLE_CONTROL_LIGHTS":               "3417_0_5851",
}

// SignedCommand is a fully-formed command request. Constructed per command, never cached or
// replayed.
type SignedCommand struct {
	MessageName     string  `json:"message_name"`
	MessageContent  string  `json:"message_content"`
	SessionID       string  `json:"sess_id"`
	Timestamp       string  `json:"timestamp"`
	Signature       string  `json:"signature"`
	Tag             *string `json:"tag"`
	UserID          string  `json:"user_id"`
	IsMasterProfile bool    `json:"isMasterProfile"`
	Signature2      string  `json:"signature2"`
	WakeUpTimeout   int     `json:"wakeUpTimeOut"`
}

// Signer signs commands with paired key material.
type Signer struct {
	privateKey *rsa.PrivateKey
	sharedKey  []byte
	host       string
	client     *http.Client
	now        func() time.Time
}

// Option adjusts a Signer.
type Option func(*Signer)

// WithHost overrides the command host.
func WithHost(host string) Option {
	return func(s *Signer) { s.host = host }
}

// WithHTTPClient overrides the HTTP client used for dispatch.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Signer) { s.client = client }
}

// WithClock overrides the timestamp source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New returns a Signer. Both keys are required; without them command signing is impossible and
// the caller must complete (or restore) a pairing first.
func New(privateKey *rsa.PrivateKey, sharedKey []byte, opts ...Option) (*Signer, error) {
	if privateKey == nil || len(sharedKey) == 0 {
		return nil, protocol.NewPairingError("not paired - cannot sign commands")
	}
	s := &Signer{
		privateKey: privateKey,
		sharedKey:  sharedKey,
		host:       pairing.DefaultPairingHost,
		client:     &http.Client{Timeout: CommandTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FromEngine builds a Signer from a paired engine.
func FromEngine(engine *pairing.Engine, opts ...Option) (*Signer, error) {
	return New(engine.PrivateKey(), engine.SharedKey(), opts...)
}

// Sign builds a dual-signed command payload. messageContent is serialized as compact JSON and
// base64-encoded; the timestamp is generated fresh per call.
func (s *Signer) Sign(messageName string, messageContent interface{}, userID, sessionID string) (*SignedCommand, error) {
	contentJSON, err := json.Marshal(messageContent)
	if err != nil {
		return nil, protocol.NewPairingError("message content not serializable: %s", err)
	}
	contentB64 := base64.StdEncoding.EncodeToString(contentJSON)
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)

	signed := append([]byte(timestamp), []byte(contentB64)...)
	digest := sha256.Sum256(signed)
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, protocol.NewPairingError("RSA signing failed: %s", err)
	}

	mac := hmac.New(sha256.New, s.sharedKey)
	mac.Write(signed)
	signature2 := mac.Sum(nil)

	userHash := sha256.Sum256([]byte(userID))

	return &SignedCommand{
		MessageName:     messageName,
		MessageContent:  contentB64,
		SessionID:       sessionID,
		Timestamp:       timestamp,
		Signature:       base64.StdEncoding.EncodeToString(signature),
		Tag:             nil,
		UserID:          base64.StdEncoding.EncodeToString(userHash[:]),
		IsMasterProfile: true,
		Signature2:      base64.StdEncoding.EncodeToString(signature2),
		WakeUpTimeout:   wakeUpBudgetMillis,
	}, nil
}

// Dispatch POSTs a signed command and returns true only on HTTP 200. Command failure is
// reported, not fatal: transport errors and bad statuses are logged and yield false.
func (s *Signer) Dispatch(ctx context.Context, accessToken string, command *SignedCommand) bool {
	body, err := json.Marshal(command)
	if err != nil {
		log.Error("Command not serializable: %s", err)
		return false
	}
	url := fmt.Sprintf("https://%s%s", s.host, commandEndpoint)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Error("Command request construction failed: %s", err)
		return false
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		log.Error("Command connection error: %s", err)
		return false
	}
	defer response.Body.Close()
	responseBody, _ := io.ReadAll(response.Body)
	if response.StatusCode != http.StatusOK {
		log.Error("Command failed: %d - %s", response.StatusCode, responseBody)
		return false
	}
	log.Info("Command sent successfully: %s", responseBody)
	return true
}

// SendControl signs and dispatches a single control write of value to deviceKey (the
// objectId_instanceId_resourceId form, see ControlAliases).
func (s *Signer) SendControl(ctx context.Context, accessToken, messageName, deviceKey string, value interface{}, userID, sessionID string) bool {
	content := map[string]interface{}{
		"deviceKey": deviceKey,
		"value":     value,
	}
	command, err := s.Sign(messageName, content, userID, sessionID)
	if err != nil {
		log.Error("Command signing failed: %s", err)
		return false
	}
	return s.Dispatch(ctx, accessToken, command)
}
