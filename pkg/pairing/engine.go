// Package pairing implements the one-time enrollment ceremony that binds a locally generated
// private key to the vehicle, so that signed remote commands are trusted.
//
// The ceremony runs QR scan → validation → RSA keypair and CSR generation → CSR encoding →
// OTP trigger → OTP submission. Progress is tracked as an explicit state; operations invalid
// for the current state fail with a [protocol.PairingError] instead of corrupting the session.
// A failed step poisons the engine: discard it and restart from the QR scan.
package pairing

import (
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/vinfast-community/ccar-command/pkg/protocol"
)

// DefaultPairingHost serves the enrollment endpoints, separate from the main API host.
const DefaultPairingHost = "ccarapi.vinfast.com"

// HandshakeTimeout bounds each enrollment request.
const HandshakeTimeout = 30 * time.Second

// State enumerates the engine's progress through the ceremony.
type State int

const (
	StateIdle State = iota
	StateQRParsed
	StateValidated
	StateKeysGenerated
	StateCSRReady
	StateEncryptedReady
	StateOTPTriggered
	StatePaired
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateQRParsed:       "qr-parsed",
	StateValidated:      "validated",
	StateKeysGenerated:  "keys-generated",
	StateCSRReady:       "csr-ready",
	StateEncryptedReady: "encrypted-ready",
	StateOTPTriggered:   "otp-triggered",
	StatePaired:         "paired",
	StateFailed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// KeyMaterial is the durable output of a successful pairing, in the shape persisted by the
// host's configuration store. Re-importing it verbatim restores signing capability after a
// restart.
type KeyMaterial struct {
	PrivateKeyPEM string `json:"private_key_pem"`
	SharedKeyB64  string `json:"shared_key_b64"`
	SessionID     string `json:"session_id"`
}

// Empty reports whether the material holds no keys.
func (m KeyMaterial) Empty() bool {
	return m.PrivateKeyPEM == "" && m.SharedKeyB64 == "" && m.SessionID == ""
}

// Engine drives one pairing attempt. It is not safe for concurrent use; only one attempt may
// be in progress per vehicle at a time.
type Engine struct {
	host   string
	client *http.Client

	state   State
	failure error

	qrParams map[string]string
	vin      string
	userID   string

	privateKey    *rsa.PrivateKey
	privateKeyPEM string
	csrPEM        string
	encryptedCSR  string
	seed          string

	sessionID    string
	sharedKey    []byte
	sharedKeyB64 string
}

// Option adjusts an Engine. Used by tests to point at a mock server.
type Option func(*Engine)

// WithHost overrides the pairing host.
func WithHost(host string) Option {
	return func(e *Engine) { e.host = host }
}

// WithHTTPClient overrides the HTTP client used for the handshake.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.client = client }
}

// NewEngine returns an idle Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		host:   DefaultPairingHost,
		client: &http.Client{Timeout: HandshakeTimeout},
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the engine's current ceremony state.
func (e *Engine) State() State {
	return e.state
}

// Err returns the failure that moved the engine to StateFailed, or nil.
func (e *Engine) Err() error {
	return e.failure
}

// IsPaired reports whether the engine holds everything needed to sign commands.
func (e *Engine) IsPaired() bool {
	return e.state == StatePaired && e.privateKey != nil && len(e.sharedKey) > 0
}

// SessionID returns the pairing session identifier once known.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// PrivateKey returns the enrollment private key, or nil before key generation.
func (e *Engine) PrivateKey() *rsa.PrivateKey {
	return e.privateKey
}

// SharedKey returns the server-issued symmetric key, or nil until enrollment completes.
func (e *Engine) SharedKey() []byte {
	return e.sharedKey
}

// Reset discards the ephemeral pairing session and returns the engine to idle. Imported or
// earned key material is discarded too; a new ceremony starts from scratch.
func (e *Engine) Reset() {
	*e = Engine{host: e.host, client: e.client, state: StateIdle}
}

// fail moves the engine to the terminal failure state and returns the error.
func (e *Engine) fail(err *protocol.PairingError) error {
	e.state = StateFailed
	e.failure = err
	return err
}

// requireState guards an operation against out-of-order calls.
func (e *Engine) requireState(expected State) error {
	if e.state != expected {
		return protocol.NewPairingError("operation invalid in state %q (expected %q)", e.state, expected)
	}
	return nil
}
