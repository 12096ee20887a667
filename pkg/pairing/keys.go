package pairing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"strings"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/protocol"
)

const rsaKeyBits = 2048

// GenerateKeypair creates the 2048-bit RSA enrollment key pair and exports the private key as
// an unencrypted PKCS#8 PEM for later persistence.
func (e *Engine) GenerateKeypair() error {
	if err := e.requireState(StateValidated); err != nil {
		return err
	}
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return e.fail(protocol.NewPairingError("keypair generation failed: %s", err))
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return e.fail(protocol.NewPairingError("private key export failed: %s", err))
	}
	e.privateKey = key
	e.privateKeyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	e.state = StateKeysGenerated
	return nil
}

// dnSpecials are escaped with a backslash in the CSR subject's OU field.
const dnSpecials = ",=+<>#;"

func escapeDeviceName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(dnSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GenerateCSR builds a certificate-signing request with subject CN={vin}_{deviceID},
// OU={deviceName}, signed with the enrollment key using SHA-256, and returns it as PEM text.
func (e *Engine) GenerateCSR(vin, deviceID, deviceName string) (string, error) {
	if err := e.requireState(StateKeysGenerated); err != nil {
		return "", err
	}
	template := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName:         vin + "_" + deviceID,
			OrganizationalUnit: []string{escapeDeviceName(deviceName)},
		},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &template, e.privateKey)
	if err != nil {
		return "", e.fail(protocol.NewPairingError("CSR generation failed: %s", err))
	}
	e.csrPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}))
	e.state = StateCSRReady
	return e.csrPEM, nil
}

// EncryptCSR prepares the CSR for transmission and returns (encryptedCSR, seed), both base64.
//
// A 16-byte random seed is hex-encoded and used as UTF-8 bytes, and an intermediate key is
// derived as HMAC-SHA256(qrKey, vin||seed) to mirror the mobile app. The derived key is not
// currently applied to the payload: the transmitted value is the base64 of the plaintext CSR,
// which is the only form the backend has been observed to accept. Whether the server expects
// real encryption here is unconfirmed; revisit once the handshake can be exercised against
// production.
func (e *Engine) EncryptCSR(qrKeyB64, vin string) (string, string, error) {
	if err := e.requireState(StateCSRReady); err != nil {
		return "", "", err
	}
	qrKey, err := base64.StdEncoding.DecodeString(qrKeyB64)
	if err != nil {
		return "", "", e.fail(protocol.NewPairingError("QR key not decodable: %s", err))
	}

	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", e.fail(protocol.NewPairingError("seed generation failed: %s", err))
	}
	seed := hex.EncodeToString(raw[:])
	seedBytes := []byte(seed)

	mac := hmac.New(sha256.New, qrKey)
	mac.Write([]byte(vin))
	mac.Write(seedBytes)
	derivedKey := mac.Sum(nil)
	log.Debug("Derived %d-byte enrollment key (unused by current wire format)", len(derivedKey))

	e.encryptedCSR = base64.StdEncoding.EncodeToString([]byte(e.csrPEM))
	e.seed = base64.StdEncoding.EncodeToString(seedBytes)
	e.state = StateEncryptedReady
	return e.encryptedCSR, e.seed, nil
}

// ExportKeys returns the durable key material, or the zero value while unpaired.
func (e *Engine) ExportKeys() KeyMaterial {
	if e.state != StatePaired {
		return KeyMaterial{}
	}
	return KeyMaterial{
		PrivateKeyPEM: e.privateKeyPEM,
		SharedKeyB64:  e.sharedKeyB64,
		SessionID:     e.sessionID,
	}
}

// ImportKeys restores signing capability from persisted key material. It returns false on any
// decode error, leaving the engine unpaired; it never fails hard, since the host treats
// unpaired as a recoverable condition.
func (e *Engine) ImportKeys(material KeyMaterial) bool {
	if material.PrivateKeyPEM == "" || material.SharedKeyB64 == "" {
		return false
	}
	key, err := parsePrivateKeyPEM(material.PrivateKeyPEM)
	if err != nil {
		log.Error("Failed to import keys: %s", err)
		return false
	}
	sharedKey, err := base64.StdEncoding.DecodeString(material.SharedKeyB64)
	if err != nil {
		log.Error("Failed to import keys: %s", err)
		return false
	}
	e.privateKey = key
	e.privateKeyPEM = material.PrivateKeyPEM
	e.sharedKey = sharedKey
	e.sharedKeyB64 = material.SharedKeyB64
	e.sessionID = material.SessionID
	e.state = StatePaired
	log.Info("Pairing keys imported successfully")
	return true
}

// Keys decodes the stored material into usable signing keys.
func (m KeyMaterial) Keys() (*rsa.PrivateKey, []byte, error) {
	key, err := parsePrivateKeyPEM(m.PrivateKeyPEM)
	if err != nil {
		return nil, nil, err
	}
	sharedKey, err := base64.StdEncoding.DecodeString(m.SharedKeyB64)
	if err != nil {
		return nil, nil, protocol.NewPairingError("share key not decodable: %s", err)
	}
	return key, sharedKey, nil
}

func parsePrivateKeyPEM(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, protocol.NewPairingError("no PEM block in private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, protocol.NewPairingError("private key is not RSA")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
