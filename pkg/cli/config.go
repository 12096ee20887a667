/*
Package cli facilitates building command-line applications that talk to the connected-car
cloud. It defines a [Config] type that registers common command-line flags (using the Golang
flag package) and environment-variable equivalents.

The package uses [keyring]'s platform-agnostic interface for storing sensitive values (the
OAuth refresh token and pairing key material) in an OS-dependent credential store, with a plain
file fallback for headless hosts.
*/
package cli

import (
	"flag"
	"os"
	"strings"

	"github.com/99designs/keyring"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/account"
)

// Environment variable names used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvEmail        = "CCAR_EMAIL"
	EnvPassword     = "CCAR_PASSWORD"
	EnvVIN          = "CCAR_VIN"
	EnvKeyFile      = "CCAR_KEY_FILE"
	EnvTokenName    = "CCAR_TOKEN_NAME"
	EnvKeyName      = "CCAR_KEY_NAME"
	EnvKeyringType  = "CCAR_KEYRING_TYPE"
	EnvKeyringPass  = "CCAR_KEYRING_PASSWORD"
	EnvKeyringPath  = "CCAR_KEYRING_PATH"
	EnvKeyringDebug = "CCAR_KEYRING_DEBUG"
)

const (
	keyringServiceName   = "com.vinfast-community.ccar"
	keyringTokenService  = "oauthtoken"
	keyringKeyService    = "pairingKeys"
	defaultKeyringFolder = "~/.ccar_keys"
)

// Config aggregates the command-line and environment parameters shared by the bundled tools.
type Config struct {
	// Email is the account login. The password is never taken from a flag; it comes from
	// CCAR_PASSWORD or an interactive prompt.
	Email string
	// VIN optionally pins the expected vehicle; when empty the first account vehicle wins.
	VIN string
	// KeyFile holds exported pairing key material as JSON. When set it takes precedence over
	// the keyring.
	KeyFile string
	// KeyringTokenName and KeyringKeyName select entries within the credential store.
	KeyringTokenName string
	KeyringKeyName   string
	// DeviceName appears in the CSR subject during pairing.
	DeviceName string
	// Debug enables verbose logging.
	Debug bool

	// Backend configures the credential store.
	Backend keyring.Config

	password       *string
	keyringOptions bool
}

// NewConfig returns a Config with keyring defaults applied.
func NewConfig() *Config {
	return &Config{
		KeyringTokenName: "default",
		KeyringKeyName:   "default",
		DeviceName:       "ccar-command",
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			FileDir:                  defaultKeyringFolder,
		},
	}
}

// RegisterCommandLineFlags adds this package's flags to the default flag set. Call before
// flag.Parse.
func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.Email, "email", "", "Account email address")
	flag.StringVar(&c.VIN, "vin", "", "Expected vehicle identification number")
	flag.StringVar(&c.KeyFile, "key-file", "", "Load pairing key material from `file` instead of the system keyring")
	flag.StringVar(&c.KeyringTokenName, "token-name", c.KeyringTokenName, "System keyring `name` of the OAuth refresh token")
	flag.StringVar(&c.KeyringKeyName, "key-name", c.KeyringKeyName, "System keyring `name` of the pairing key material")
	flag.StringVar(&c.DeviceName, "device-name", c.DeviceName, "Device `name` embedded in the enrollment certificate request")
	flag.BoolVar(&c.Debug, "debug", false, "Enable verbose debugging messages")
	flag.Var(backendType{c}, "keyring-type", "Keyring `type` (one of: "+strings.Join(availableBackends(), ", ")+")")
	flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", c.Backend.FileDir, "keyring `directory` for file-backed credential stores")
	flag.BoolVar(&c.keyringOptions, "keyring-debug", false, "Enable keyring debug logging")
}

// ReadFromEnvironment fills in fields that were not set on the command line using environment
// variables.
func (c *Config) ReadFromEnvironment() {
	if c.Email == "" {
		c.Email = os.Getenv(EnvEmail)
	}
	if c.VIN == "" {
		c.VIN = os.Getenv(EnvVIN)
	}
	if c.KeyFile == "" {
		c.KeyFile = os.Getenv(EnvKeyFile)
	}
	if name := os.Getenv(EnvTokenName); name != "" && c.KeyringTokenName == "default" {
		c.KeyringTokenName = name
	}
	if name := os.Getenv(EnvKeyName); name != "" && c.KeyringKeyName == "default" {
		c.KeyringKeyName = name
	}
	if backend := os.Getenv(EnvKeyringType); backend != "" {
		if err := (backendType{c}).Set(backend); err != nil {
			log.Warning("Ignoring %s: %s", EnvKeyringType, err)
		}
	}
	if dir := os.Getenv(EnvKeyringPath); dir != "" {
		c.Backend.FileDir = dir
	}
	if os.Getenv(EnvKeyringDebug) != "" {
		c.keyringOptions = true
	}
	if password := os.Getenv(EnvPassword); password != "" {
		c.password = &password
	}
}

// ApplyLogLevel configures the global logger from the Debug flag.
func (c *Config) ApplyLogLevel() {
	if c.Debug {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelWarning)
	}
	keyring.Debug = c.keyringOptions
}

// NewSession builds an account session from the config, using production endpoints.
func (c *Config) NewSession() *account.Session {
	return account.New(account.Config{
		Device: account.DeviceInfo{Identifier: "ccar-command-cli"},
	})
}

// AccountPassword returns the account password from the environment or an interactive prompt.
func (c *Config) AccountPassword() (string, error) {
	return c.getPassword("Account password")
}
