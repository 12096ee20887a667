package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/vinfast-community/ccar-command/pkg/keystore"
	"github.com/vinfast-community/ccar-command/pkg/pairing"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

func availableBackends() []string {
	var names []string
	for _, name := range keyring.AvailableBackends() {
		names = append(names, string(name))
	}
	return names
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	value, err := promptSecret(prompt)
	if err != nil {
		return "", err
	}
	c.password = &value
	return value, nil
}

// PromptOTP reads the one-time passcode the server sent during pairing.
func PromptOTP() (string, error) {
	return promptSecret("One-time passcode")
}

func promptSecret(prompt string) (string, error) {
	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	return string(b), nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	if c.Backend.FilePasswordFunc == nil {
		c.Backend.FilePasswordFunc = func(prompt string) (string, error) {
			if pass := os.Getenv(EnvKeyringPass); pass != "" {
				return pass, nil
			}
			return promptSecret(prompt)
		}
	}
	return keyring.Open(c.Backend)
}

// LoadRefreshTokenFromKeyring loads a stored OAuth refresh token from the system keyring.
func (c *Config) LoadRefreshTokenFromKeyring() (string, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}
	item, err := kr.Get(keyringTokenService + "." + c.KeyringTokenName)
	if err != nil {
		return "", fmt.Errorf("could not load token: %s", err)
	}
	return string(item.Data), nil
}

// SaveRefreshTokenToKeyring writes the account's OAuth refresh token to the system keyring.
func (c *Config) SaveRefreshTokenToKeyring(token string) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  keyringTokenService + "." + c.KeyringTokenName,
		Data: []byte(token),
	}); err != nil {
		return fmt.Errorf("failed to store token in keyring: %s", err)
	}
	return nil
}

// LoadKeyMaterial reads pairing key material from the key file when configured, otherwise from
// the system keyring.
func (c *Config) LoadKeyMaterial() (pairing.KeyMaterial, error) {
	if c.KeyFile != "" {
		return keystore.ImportFromFile(c.KeyFile)
	}
	kr, err := c.openKeyring()
	if err != nil {
		return pairing.KeyMaterial{}, err
	}
	item, err := kr.Get(keyringKeyService + "." + c.KeyringKeyName)
	if err != nil {
		return pairing.KeyMaterial{}, fmt.Errorf("could not load key material: %s", err)
	}
	return keystore.Import(bytes.NewReader(item.Data))
}

// SaveKeyMaterial writes pairing key material to the key file when configured, otherwise to the
// system keyring.
func (c *Config) SaveKeyMaterial(material pairing.KeyMaterial) error {
	if c.KeyFile != "" {
		return keystore.ExportToFile(c.KeyFile, material)
	}
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	var buffer bytes.Buffer
	if err := keystore.Export(&buffer, material); err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  keyringKeyService + "." + c.KeyringKeyName,
		Data: buffer.Bytes(),
	}); err != nil {
		return fmt.Errorf("failed to store key material in keyring: %s", err)
	}
	return nil
}
