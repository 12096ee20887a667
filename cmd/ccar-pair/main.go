// ccar-pair enrolls this device with a vehicle so that ccar-control can sign commands.
//
// The ceremony starts from the pairing QR code shown on the vehicle's head unit: the program
// validates it against the account, generates an enrollment key pair, submits a certificate
// request, and confirms with the one-time passcode the server sends to the account's phone or
// email. The resulting key material is saved to the system keyring (or -key-file).
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/account"
	"github.com/vinfast-community/ccar-command/pkg/cli"
	"github.com/vinfast-community/ccar-command/pkg/pairing"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

func login(ctx context.Context, config *cli.Config, session *account.Session) error {
	if token, err := config.LoadRefreshTokenFromKeyring(); err == nil && token != "" {
		session.UseRefreshToken(token)
		if session.Refresh(ctx) {
			return nil
		}
		writeErr("Stored refresh token rejected; falling back to password login")
	}
	if config.Email == "" {
		return errors.New("no credentials: set -email or " + cli.EnvEmail)
	}
	password, err := config.AccountPassword()
	if err != nil {
		return err
	}
	if err := session.Authenticate(ctx, config.Email, password); err != nil {
		return err
	}
	if token := session.RefreshToken(); token != "" {
		if err := config.SaveRefreshTokenToKeyring(token); err != nil {
			writeErr("Warning: could not save refresh token: %s", err)
		}
	}
	return nil
}

func promptLine(prompt string) (string, error) {
	fmt.Printf("%s: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// newDeviceID generates the identifier embedded in the certificate subject. A fresh random ID
// per enrollment is fine; the server tracks the pairing by session, not by device ID.
func newDeviceID() (string, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

func pair(ctx context.Context, config *cli.Config, qrContent, phone, deviceID string, timeout time.Duration) error {
	session := config.NewSession()
	if err := login(ctx, config, session); err != nil {
		return err
	}
	if _, err := session.GetVehicles(ctx); err != nil {
		return err
	}
	if session.VIN() == "" {
		return errors.New("no vehicles on account")
	}

	engine := pairing.NewEngine(pairing.WithHTTPClient(&http.Client{Timeout: timeout}))
	fields, err := engine.ParseQR(qrContent)
	if err != nil {
		return err
	}
	expectedVIN := config.VIN
	if expectedVIN == "" {
		expectedVIN = session.VIN()
	}
	if err := engine.Validate(expectedVIN, session.UserID()); err != nil {
		return err
	}
	fmt.Printf("QR code validated for vehicle %s\n", fields["vin"])

	if err := engine.GenerateKeypair(); err != nil {
		return err
	}
	if deviceID == "" {
		if deviceID, err = newDeviceID(); err != nil {
			return err
		}
	}
	if _, err := engine.GenerateCSR(fields["vin"], deviceID, config.DeviceName); err != nil {
		return err
	}
	if _, _, err := engine.EncryptCSR(fields["K"], fields["vin"]); err != nil {
		return err
	}

	if err := engine.VerifySession(ctx, session.AccessToken(), fields["ssid"], phone, config.Email, false); err != nil {
		return err
	}
	fmt.Println("A one-time passcode has been sent to the account's phone or email.")

	otp, err := cli.PromptOTP()
	if err != nil {
		return err
	}
	if _, err := engine.SendPairData(ctx, session.AccessToken(), otp, phone, config.Email); err != nil {
		return err
	}
	if !engine.IsPaired() {
		return errors.New("pairing completed but the server did not return a share key")
	}

	if err := config.SaveKeyMaterial(engine.ExportKeys()); err != nil {
		return fmt.Errorf("pairing succeeded but key material could not be saved: %w", err)
	}
	fmt.Println("Pairing complete. Key material saved.")
	return nil
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		qrContent string
		phone     string
		deviceID  string
		timeout   time.Duration
	)
	config := cli.NewConfig()
	flag.StringVar(&qrContent, "qr", "", "Pairing QR code `content` from the vehicle's head unit")
	flag.StringVar(&phone, "phone", "", "Phone `number` to receive the one-time passcode (defaults to email delivery)")
	flag.StringVar(&deviceID, "device-id", "", "Device `identifier` for the enrollment certificate (random when empty)")
	flag.DurationVar(&timeout, "timeout", pairing.HandshakeTimeout, "Set `timeout` for each pairing exchange.")
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	config.ApplyLogLevel()

	if qrContent == "" {
		var err error
		qrContent, err = promptLine("Scan the pairing QR code and paste its content")
		if err != nil {
			writeErr("Error reading QR content: %s", err)
			return
		}
	}

	// The OTP prompt blocks on the user, so the deadline covers setup only; each HTTP exchange
	// carries its own timeout through the engine's client.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := pair(ctx, config, qrContent, phone, deviceID, timeout); err != nil {
		writeErr("Error: %s", err)
		log.Debug("Pairing failed: %s", err)
		return
	}
	status = 0
}
