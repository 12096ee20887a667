// ccar-control sends commands to a paired vehicle through the connected-car cloud.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/vinfast-community/ccar-command/internal/log"
	"github.com/vinfast-community/ccar-command/pkg/cli"
	"github.com/vinfast-community/ccar-command/pkg/protocol"
	"github.com/vinfast-community/ccar-command/pkg/sign"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Read commands (state, vehicles, profile, locations) require account credentials.
 * Control commands (lock, climate-on, ...) additionally require pairing key material,
   created by ccar-pair and loaded with -key-file or -key-name.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(env *commandEnv, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, env, args); err != nil {
		if protocol.MayHaveSucceeded(err) {
			writeErr("Couldn't verify success: %s", err)
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(env *commandEnv, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(env, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

// login authenticates the session, preferring a stored refresh token over a password prompt,
// and pins the account's vehicle.
func login(ctx context.Context, config *cli.Config, env *commandEnv) error {
	token, err := config.LoadRefreshTokenFromKeyring()
	if err == nil && token != "" {
		env.session.UseRefreshToken(token)
		if env.session.Refresh(ctx) {
			log.Debug("Authenticated with stored refresh token")
		} else {
			writeErr("Stored refresh token rejected; falling back to password login")
			token = ""
		}
	}
	if env.session.AccessToken() == "" {
		if config.Email == "" {
			return errors.New("no credentials: set -email or " + cli.EnvEmail)
		}
		password, err := config.AccountPassword()
		if err != nil {
			return err
		}
		if err := env.session.Authenticate(ctx, config.Email, password); err != nil {
			return err
		}
		if refreshed := env.session.RefreshToken(); refreshed != "" {
			if err := config.SaveRefreshTokenToKeyring(refreshed); err != nil {
				writeErr("Warning: could not save refresh token: %s", err)
			}
		}
	}

	vehicles, err := env.session.GetVehicles(ctx)
	if err != nil {
		return err
	}
	if len(vehicles) == 0 {
		return errors.New("no vehicles on account")
	}
	if config.VIN != "" && env.session.VIN() != config.VIN {
		writeErr("Warning: account vehicle %s does not match -vin %s", env.session.VIN(), config.VIN)
	}
	return nil
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		commandTimeout time.Duration
		loginTimeout   time.Duration
	)
	config := cli.NewConfig()
	flag.Usage = Usage
	flag.DurationVar(&commandTimeout, "command-timeout", sign.CommandTimeout, "Set `timeout` for commands sent to the vehicle.")
	flag.DurationVar(&loginTimeout, "login-timeout", 30*time.Second, "Set `timeout` for authentication.")
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	config.ApplyLogLevel()

	args := flag.Args()
	if len(args) > 0 && args[0] == "help" {
		if len(args) == 1 {
			Usage()
			status = 0
			return
		}
		info, ok := commands[args[1]]
		if !ok {
			writeErr("Unrecognized command: %s", args[1])
			return
		}
		info.Usage(args[1])
		status = 0
		return
	}

	env := &commandEnv{session: config.NewSession()}

	if material, err := config.LoadKeyMaterial(); err == nil && !material.Empty() {
		privateKey, sharedKey, err := material.Keys()
		if err != nil {
			writeErr("Invalid key material: %s", err)
			return
		}
		signer, err := sign.New(privateKey, sharedKey)
		if err != nil {
			writeErr("Error: %s", err)
			return
		}
		env.signer = signer
		env.pairSessionID = material.SessionID
	} else if err != nil {
		log.Debug("No pairing key material loaded: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	err := login(ctx, config, env)
	cancel()
	if err != nil {
		writeErr("Error: %s", err)
		return
	}

	if flag.NArg() > 0 {
		status = runCommand(env, flag.Args(), commandTimeout)
	} else {
		status = runInteractiveShell(env, commandTimeout)
	}
}
