// Package config defines the CLI structure and configuration for fightstick.
package config

import (
	"github.com/fightstick/fightstick/internal/cmd"
)

type Log struct {
	Level   string `help:"Log level: trace, debug, info, warn, error" default:"info" env:"FIGHTSTICK_LOG_LEVEL"`
	File    string `help:"Log file path (default: none; logs only to console)" env:"FIGHTSTICK_LOG_FILE"`
	RawFile string `help:"Raw USB/IP packet log file path (default: none)" env:"FIGHTSTICK_LOG_RAW_FILE"`
}

// CLI is the root command structure for Kong CLI parsing.
type CLI struct {
	Log `embed:"" prefix:"log."`

	ConfigFile string `name:"config" help:"Config file to load before the default locations" env:"FIGHTSTICK_CONFIG" placeholder:"PATH"`

	Play      cmd.Play          `cmd:"" default:"withargs" help:"Export the pad over USB/IP and play a macro"`
	Script    cmd.ScriptCommand `cmd:"" help:"Inspect, validate and convert macro scripts"`
	Config    cmd.ConfigCommand `cmd:"" help:"Configuration helpers"`
	Install   cmd.Install       `cmd:"" help:"Install a systemd service that plays a macro at boot"`
	Uninstall cmd.Uninstall     `cmd:"" help:"Remove the systemd service"`
}
