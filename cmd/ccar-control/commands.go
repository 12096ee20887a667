package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/vinfast-community/ccar-command/pkg/account"
	"github.com/vinfast-community/ccar-command/pkg/sign"
)

var (
	ErrCommandLineArgs    = errors.New("invalid command line arguments")
	ErrUnknownCommand     = errors.New("unrecognized command")
	ErrRequiresKeys       = errors.New("command requires pairing key material (-key-file or -key-name)")
	ErrCommandUnconfirmed = errors.New("vehicle did not confirm the command")
)

type Argument struct {
	name string
	help string
}

// commandEnv carries the authenticated session and, when key material was loaded, a signer for
// remote-control writes.
type commandEnv struct {
	session *account.Session
	signer  *sign.Signer
	// pairSessionID is the sess_id issued during enrollment, echoed back with every command.
	pairSessionID string
}

type Handler func(ctx context.Context, env *commandEnv, args map[string]string) error

type Command struct {
	help         string
	requiresKeys bool // True if command signs a remote-control write (needs pairing keys)
	args         []Argument
	optional     []Argument
	handler      Handler
}

func checkReadiness(commandName string, haveKeys bool) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requiresKeys && !haveKeys {
		return nil, ErrRequiresKeys
	}
	return info, nil
}

func execute(ctx context.Context, env *commandEnv, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, err := checkReadiness(args[0], env.signer != nil)
	if err != nil {
		return err
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, env, keywords)
	}

	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	for _, arg := range c.optional {
		fmt.Printf(" [%s]", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	fmt.Printf("\n%s\n", c.help)
	if len(c.args)+len(c.optional) > 0 {
		fmt.Printf("Arguments:\n")
	}
	pad := func(name string) string {
		out := "  " + name + ":"
		for len(out) < maxLength+4 {
			out += " "
		}
		return out
	}
	for _, arg := range c.args {
		fmt.Printf("%s %s\n", pad(arg.name), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("%s %s (optional)\n", pad(arg.name), arg.help)
	}
}

// sendControl signs and dispatches a single control write named by its catalog alias.
func (env *commandEnv) sendControl(ctx context.Context, alias string, value interface{}) error {
	deviceKey, ok := sign.ControlAliases[alias]
	if !ok {
		return fmt.Errorf("no device key known for %s", alias)
	}
	ok = env.signer.SendControl(ctx, env.session.AccessToken(), alias, deviceKey, value, env.session.UserID(), env.pairSessionID)
	if !ok {
		return ErrCommandUnconfirmed
	}
	return nil
}

func parseTemperature(value string) (float64, error) {
	temp, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a valid temperature", ErrCommandLineArgs, value)
	}
	if temp < 16 || temp > 30 {
		return 0, fmt.Errorf("%w: temperature must be between 16 and 30 degrees Celsius", ErrCommandLineArgs)
	}
	return temp, nil
}

func printJSON(value interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

var commands = map[string]*Command{
	"lock": {
		help:         "Lock the doors",
		requiresKeys: true,
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			return env.sendControl(ctx, "VEHICLE_CONTROL_DOOR_LOCK", 1)
		},
	},
	"unlock": {
		help:         "Unlock the doors",
		requiresKeys: true,
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			return env.sendControl(ctx, "VEHICLE_CONTROL_DOOR_UNLOCK", 1)
		},
	},
	"honk": {
		help:         "Sound the horn",
		requiresKeys: true,
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			return env.sendControl(ctx, "VEHICLE_CONTROL_HORN", 1)
		},
	},
	"flash": {
		help:         "Flash the exterior lights",
		requiresKeys: true,
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			return env.sendControl(ctx, "VEHICLE_CONTROL_LIGHTS", 1)
		},
	},
	"climate-on": {
		help:         "Turn on the climate system",
		requiresKeys: true,
		optional:     []Argument{{name: "TEMP", help: "Target temperature in degrees Celsius"}},
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			if err := env.sendControl(ctx, "CLIMATE_CONTROL_AIR_CONDITION_ENABLE", 1); err != nil {
				return err
			}
			if value, ok := args["TEMP"]; ok {
				temp, err := parseTemperature(value)
				if err != nil {
					return err
				}
				return env.sendControl(ctx, "CLIMATE_CONTROL_TARGET_TEMPERATURE", temp)
			}
			return nil
		},
	},
	"climate-off": {
		help:         "Turn off the climate system",
		requiresKeys: true,
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			return env.sendControl(ctx, "CLIMATE_CONTROL_AIR_CONDITION_ENABLE", 0)
		},
	},
	"set-temp": {
		help:         "Set the climate target temperature",
		requiresKeys: true,
		args:         []Argument{{name: "TEMP", help: "Target temperature in degrees Celsius"}},
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			temp, err := parseTemperature(args["TEMP"])
			if err != nil {
				return err
			}
			return env.sendControl(ctx, "CLIMATE_CONTROL_TARGET_TEMPERATURE", temp)
		},
	},
	"vehicles": {
		help: "List vehicles on the account",
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			vehicles, err := env.session.GetVehicles(ctx)
			if err != nil {
				return err
			}
			return printJSON(vehicles)
		},
	},
	"state": {
		help: "Fetch and print the current vehicle state",
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			data := env.session.GetAllData(ctx)
			for _, err := range data.Errors {
				writeErr("Warning: %s", err)
			}
			return printJSON(data)
		},
	},
	"profile": {
		help: "Fetch and print the account profile",
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			profile, err := env.session.GetProfile(ctx)
			if err != nil {
				return err
			}
			return printJSON(profile)
		},
	},
	"locations": {
		help: "List favorite locations saved in the account",
		handler: func(ctx context.Context, env *commandEnv, args map[string]string) error {
			locations, err := env.session.GetLocations(ctx)
			if err != nil {
				return err
			}
			return printJSON(locations)
		},
	},
}
