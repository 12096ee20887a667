package pairing

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
)

const (
	testVIN      = "VF1TEST000000001"
	testQRKey    = "c2VjcmV0LXFyLWtleQ==" // base64("secret-qr-key")
	testQR       = "K=" + testQRKey + "&ssid=S1&vin=" + testVIN + "&timeout=60"
	testDeviceID = "abcdef0123456789"
)

func TestParseQR(t *testing.T) {
	e := NewEngine()
	fields, err := e.ParseQR(testQR)
	if err != nil {
		t.Fatalf("ParseQR returned error: %s", err)
	}
	if fields["K"] != testQRKey || fields["ssid"] != "S1" || fields["vin"] != testVIN || fields["timeout"] != "60" {
		t.Errorf("fields = %v", fields)
	}
	if e.State() != StateQRParsed {
		t.Errorf("state = %s, want qr-parsed", e.State())
	}
}

func TestParseQRPreservesExtraFields(t *testing.T) {
	e := NewEngine()
	fields, err := e.ParseQR(testQR + "&profileId=cGxheWVyLTEyMw==")
	if err != nil {
		t.Fatal(err)
	}
	if fields["profileId"] != "cGxheWVyLTEyMw==" {
		t.Errorf("profileId = %q", fields["profileId"])
	}
}

func TestParseQRMissingFields(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"no key":      "ssid=S1&vin=" + testVIN + "&timeout=60",
		"no ssid":     "K=" + testQRKey + "&vin=" + testVIN + "&timeout=60",
		"no vin":      "K=" + testQRKey + "&ssid=S1&timeout=60",
		"no timeout":  "K=" + testQRKey + "&ssid=S1&vin=" + testVIN,
		"only junk":   "hello world",
		"bare values": "K&ssid&vin&timeout",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			e := NewEngine()
			if _, err := e.ParseQR(content); err == nil {
				t.Fatal("ParseQR accepted an incomplete QR code")
			}
			if e.State() != StateFailed {
				t.Errorf("state = %s, want failed", e.State())
			}
			if e.Err() == nil {
				t.Error("Err() should report the failure")
			}
		})
	}
}

func TestValidateVINMismatch(t *testing.T) {
	e := NewEngine()
	if _, err := e.ParseQR(testQR); err != nil {
		t.Fatal(err)
	}
	if err := e.Validate("VF1OTHER00000002", ""); err == nil {
		t.Fatal("Validate accepted a VIN mismatch")
	}
	if e.State() != StateFailed {
		t.Errorf("state = %s, want failed", e.State())
	}
}

func TestValidateProfileMismatchIsAdvisory(t *testing.T) {
	e := NewEngine()
	profileID := base64.StdEncoding.EncodeToString([]byte("someone-else"))
	if _, err := e.ParseQR(testQR + "&profileId=" + profileID); err != nil {
		t.Fatal(err)
	}
	if err := e.Validate(testVIN, "player-123"); err != nil {
		t.Fatalf("profile mismatch should not fail validation: %s", err)
	}
	if e.State() != StateValidated {
		t.Errorf("state = %s, want validated", e.State())
	}
}

func TestValidateUndecodableProfileIsAdvisory(t *testing.T) {
	e := NewEngine()
	if _, err := e.ParseQR(testQR + "&profileId=!!!not-base64!!!"); err != nil {
		t.Fatal(err)
	}
	if err := e.Validate(testVIN, "player-123"); err != nil {
		t.Fatalf("undecodable profileId should not fail validation: %s", err)
	}
}

func TestOperationsRejectOutOfOrderCalls(t *testing.T) {
	e := NewEngine()
	if err := e.GenerateKeypair(); err == nil {
		t.Error("GenerateKeypair accepted before validation")
	}

	e = NewEngine()
	if err := e.Validate(testVIN, ""); err == nil {
		t.Error("Validate accepted before ParseQR")
	}

	e = NewEngine()
	if _, err := e.GenerateCSR(testVIN, testDeviceID, "dev"); err == nil {
		t.Error("GenerateCSR accepted before key generation")
	}

	e = NewEngine()
	if _, _, err := e.EncryptCSR(testQRKey, testVIN); err == nil {
		t.Error("EncryptCSR accepted before CSR generation")
	}
}

func validatedEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	if _, err := e.ParseQR(testQR); err != nil {
		t.Fatal(err)
	}
	if err := e.Validate(testVIN, "player-123"); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestGenerateKeypairAndCSR(t *testing.T) {
	e := validatedEngine(t)
	if err := e.GenerateKeypair(); err != nil {
		t.Fatalf("GenerateKeypair: %s", err)
	}
	if e.PrivateKey() == nil || e.PrivateKey().N.BitLen() != 2048 {
		t.Error("expected a 2048-bit RSA key")
	}

	csrPEM, err := e.GenerateCSR(testVIN, testDeviceID, "My, Device=Name")
	if err != nil {
		t.Fatalf("GenerateCSR: %s", err)
	}
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		t.Fatalf("CSR is not a CERTIFICATE REQUEST PEM block")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		t.Fatalf("CSR does not parse: %s", err)
	}
	if csr.Subject.CommonName != testVIN+"_"+testDeviceID {
		t.Errorf("CN = %q", csr.Subject.CommonName)
	}
	if len(csr.Subject.OrganizationalUnit) != 1 || !strings.Contains(csr.Subject.OrganizationalUnit[0], `\,`) {
		t.Errorf("OU = %v, want escaped device name", csr.Subject.OrganizationalUnit)
	}
	if err := csr.CheckSignature(); err != nil {
		t.Errorf("CSR signature invalid: %s", err)
	}
}

func TestEncryptCSR(t *testing.T) {
	e := validatedEngine(t)
	if err := e.GenerateKeypair(); err != nil {
		t.Fatal(err)
	}
	csrPEM, err := e.GenerateCSR(testVIN, testDeviceID, "dev")
	if err != nil {
		t.Fatal(err)
	}

	encrypted, seed, err := e.EncryptCSR(testQRKey, testVIN)
	if err != nil {
		t.Fatalf("EncryptCSR: %s", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		t.Fatalf("encryptedCSR is not base64: %s", err)
	}
	// The wire format carries the CSR as plain base64.
	if string(decoded) != csrPEM {
		t.Error("encryptedCSR does not decode to the CSR PEM")
	}
	seedBytes, err := base64.StdEncoding.DecodeString(seed)
	if err != nil {
		t.Fatalf("seed is not base64: %s", err)
	}
	// The seed is a hex string of a 16-byte value, sent as 32 UTF-8 bytes.
	if len(seedBytes) != 32 {
		t.Errorf("seed decodes to %d bytes, want 32", len(seedBytes))
	}
	if e.State() != StateEncryptedReady {
		t.Errorf("state = %s, want encrypted-ready", e.State())
	}
}

func TestEncryptCSRBadQRKey(t *testing.T) {
	e := validatedEngine(t)
	if err := e.GenerateKeypair(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GenerateCSR(testVIN, testDeviceID, "dev"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.EncryptCSR("!!!not-base64!!!", testVIN); err == nil {
		t.Fatal("EncryptCSR accepted an undecodable QR key")
	}
	if e.State() != StateFailed {
		t.Errorf("state = %s, want failed", e.State())
	}
}

func TestExportKeysBeforePaired(t *testing.T) {
	e := validatedEngine(t)
	if material := e.ExportKeys(); !material.Empty() {
		t.Errorf("ExportKeys before pairing = %+v, want zero value", material)
	}
}

func TestImportKeysRoundTrip(t *testing.T) {
	paired := pairedEngine(t)
	material := paired.ExportKeys()
	if material.Empty() {
		t.Fatal("paired engine exported empty material")
	}

	restored := NewEngine()
	if !restored.ImportKeys(material) {
		t.Fatal("ImportKeys rejected exported material")
	}
	if !restored.IsPaired() {
		t.Error("restored engine is not paired")
	}
	if restored.SessionID() != paired.SessionID() {
		t.Errorf("session id = %q, want %q", restored.SessionID(), paired.SessionID())
	}
	if restored.PrivateKey().N.Cmp(paired.PrivateKey().N) != 0 {
		t.Error("restored private key differs")
	}
}

func TestImportKeysRejectsGarbage(t *testing.T) {
	e := NewEngine()
	if e.ImportKeys(KeyMaterial{}) {
		t.Error("ImportKeys accepted empty material")
	}
	if e.ImportKeys(KeyMaterial{PrivateKeyPEM: "not a pem", SharedKeyB64: "AAAA"}) {
		t.Error("ImportKeys accepted an invalid PEM")
	}
	if e.ImportKeys(KeyMaterial{PrivateKeyPEM: "not a pem", SharedKeyB64: "!!!"}) {
		t.Error("ImportKeys accepted an invalid shared key")
	}
	if e.IsPaired() {
		t.Error("failed imports must leave the engine unpaired")
	}
}

func TestReset(t *testing.T) {
	e := pairedEngine(t)
	e.Reset()
	if e.State() != StateIdle {
		t.Errorf("state after Reset = %s, want idle", e.State())
	}
	if e.PrivateKey() != nil || e.SharedKey() != nil {
		t.Error("Reset must discard key material")
	}
	if _, err := e.ParseQR(testQR); err != nil {
		t.Errorf("engine unusable after Reset: %s", err)
	}
}
