package pairing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
)

const (
	testHost        = "pair.example.com"
	testAccessToken = "access-1"
	testShareKey    = "c2hhcmVkLWtleS1ieXRlcw==" // base64("shared-key-bytes")
)

func mockedEngine() *Engine {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	return NewEngine(WithHost(testHost), WithHTTPClient(client))
}

// readyEngine runs the local ceremony steps up to the first network exchange.
func readyEngine(t *testing.T, e *Engine) {
	t.Helper()
	if _, err := e.ParseQR(testQR); err != nil {
		t.Fatal(err)
	}
	if err := e.Validate(testVIN, "player-123"); err != nil {
		t.Fatal(err)
	}
	if err := e.GenerateKeypair(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GenerateCSR(testVIN, testDeviceID, "dev"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.EncryptCSR(testQRKey, testVIN); err != nil {
		t.Fatal(err)
	}
}

// pairedEngine walks the whole ceremony against a mocked server and returns a paired engine.
func pairedEngine(t *testing.T) *Engine {
	t.Helper()
	defer httpmock.DeactivateAndReset()
	e := mockedEngine()
	readyEngine(t, e)

	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+verifySessionEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"code": 200000, "message": "OTP sent"}`))
	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+sendPairDataEndpoint, func(r *http.Request) (*http.Response, error) {
		return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
			"code": 200000,
			"data": map[string]interface{}{"base64EncryptedShareKey": testShareKey},
		})
	})

	if err := e.VerifySession(context.Background(), testAccessToken, "S1", "", "user@example.com", false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SendPairData(context.Background(), testAccessToken, "123456", "", "user@example.com"); err != nil {
		t.Fatal(err)
	}
	if !e.IsPaired() {
		t.Fatal("ceremony completed but engine is not paired")
	}
	return e
}

func TestVerifySession(t *testing.T) {
	defer httpmock.DeactivateAndReset()
	e := mockedEngine()
	readyEngine(t, e)

	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+verifySessionEndpoint, func(r *http.Request) (*http.Response, error) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+testAccessToken {
			t.Errorf("Authorization = %q", got)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload["ssid"] != "S1" {
			t.Errorf("ssid = %v", payload["ssid"])
		}
		// Empty contact fields are sent as JSON null, not "".
		if payload["phoneNumber"] != nil {
			t.Errorf("phoneNumber = %v, want null", payload["phoneNumber"])
		}
		if payload["email"] != "user@example.com" {
			t.Errorf("email = %v", payload["email"])
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"code": 200000}`), nil
	})

	if err := e.VerifySession(context.Background(), testAccessToken, "S1", "", "user@example.com", false); err != nil {
		t.Fatalf("VerifySession: %s", err)
	}
	if e.State() != StateOTPTriggered {
		t.Errorf("state = %s, want otp-triggered", e.State())
	}
	if e.SessionID() != "S1" {
		t.Errorf("SessionID = %q", e.SessionID())
	}
}

func TestVerifySessionServerError(t *testing.T) {
	defer httpmock.DeactivateAndReset()
	e := mockedEngine()
	readyEngine(t, e)

	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+verifySessionEndpoint,
		httpmock.NewStringResponder(http.StatusForbidden, `{"message": "session expired"}`))

	if err := e.VerifySession(context.Background(), testAccessToken, "S1", "", "user@example.com", false); err == nil {
		t.Fatal("VerifySession accepted a 403")
	}
	if e.State() != StateFailed {
		t.Errorf("state = %s, want failed", e.State())
	}
}

func TestVerifySessionRetryResendsOTP(t *testing.T) {
	defer httpmock.DeactivateAndReset()
	e := mockedEngine()
	readyEngine(t, e)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+verifySessionEndpoint, func(r *http.Request) (*http.Response, error) {
		calls++
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if calls > 1 && payload["retry"] != true {
			t.Errorf("retry = %v, want true on resend", payload["retry"])
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"code": 200000}`), nil
	})

	if err := e.VerifySession(context.Background(), testAccessToken, "S1", "", "user@example.com", false); err != nil {
		t.Fatalf("VerifySession: %s", err)
	}
	// The code never arrived. Asking for a resend keeps the session alive.
	if err := e.VerifySession(context.Background(), testAccessToken, "S1", "", "user@example.com", true); err != nil {
		t.Fatalf("VerifySession retry: %s", err)
	}
	if e.State() != StateOTPTriggered {
		t.Errorf("state = %s, want otp-triggered", e.State())
	}

	// Without the retry flag a second trigger is still out of order.
	if err := e.VerifySession(context.Background(), testAccessToken, "S1", "", "user@example.com", false); err == nil {
		t.Fatal("VerifySession accepted a repeat call without retry")
	}
}

func TestSendPairData(t *testing.T) {
	e := pairedEngine(t)
	wantKey, _ := base64.StdEncoding.DecodeString(testShareKey)
	if string(e.SharedKey()) != string(wantKey) {
		t.Errorf("SharedKey = %q, want decoded share key", e.SharedKey())
	}
}

func TestSendPairDataWrongOTP(t *testing.T) {
	defer httpmock.DeactivateAndReset()
	e := mockedEngine()
	readyEngine(t, e)

	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+verifySessionEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"code": 200000}`))
	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+sendPairDataEndpoint,
		httpmock.NewStringResponder(http.StatusBadRequest, `{"message": "invalid otp"}`))

	if err := e.VerifySession(context.Background(), testAccessToken, "S1", "", "user@example.com", false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SendPairData(context.Background(), testAccessToken, "000000", "", "user@example.com"); err == nil {
		t.Fatal("SendPairData accepted a 400")
	}
	if e.State() != StateFailed {
		t.Errorf("state = %s, want failed", e.State())
	}
}

func TestSendPairDataWithoutShareKey(t *testing.T) {
	defer httpmock.DeactivateAndReset()
	e := mockedEngine()
	readyEngine(t, e)

	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+verifySessionEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"code": 200000}`))
	httpmock.RegisterResponder(http.MethodPost, "https://"+testHost+sendPairDataEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"code": 200000, "data": {}}`))

	if err := e.VerifySession(context.Background(), testAccessToken, "S1", "", "user@example.com", false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SendPairData(context.Background(), testAccessToken, "123456", "", "user@example.com"); err != nil {
		t.Fatal(err)
	}
	// The exchange completed, but without a share key signing remains impossible.
	if e.State() != StatePaired {
		t.Errorf("state = %s, want paired", e.State())
	}
	if e.IsPaired() {
		t.Error("IsPaired must be false without a share key")
	}
}

func TestSendPairDataBeforeOTP(t *testing.T) {
	e := NewEngine()
	if _, err := e.SendPairData(context.Background(), testAccessToken, "123456", "", ""); err == nil {
		t.Fatal("SendPairData accepted before OTP trigger")
	}
}
