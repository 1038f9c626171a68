package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/strand-sched/strand/internal/options"
)

var v *viper.Viper

// viperKeyDelimiter marks nested values in the configuration. The usual "."
// would make viper treat a key like `log.level` as an object path even when a
// user means a literal dotted key, so a delimiter that cannot appear in our
// keys is used instead.
const viperKeyDelimiter = ".."

type configKey []string

func (c configKey) EnvName() string {
	return "STRAND_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

// registerConfig registers flags and environment variables, and sets default
// values for the flags. Every option is reachable as a flag (`--store-host`),
// an environment variable (`STRAND_STORE_HOST`), or a config file key, with
// flag > env > config > default precedence.
func registerConfig(flags *pflag.FlagSet) {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := options.DefaultOptions()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of config file")

	registerString(flags, name("log", "level"),
		defaults.Log.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(flags, name("log", "color"),
		defaults.Log.Color, "output logs in color")
	registerBool(flags, name("log", "structured"),
		defaults.Log.Structured, "output logs as json")

	registerString(flags, name("store-host"),
		defaults.StoreHost, "state store host")
	registerInt(flags, name("store-port"),
		defaults.StorePort, "state store port")
	registerInt(flags, name("store-connect-retries"),
		defaults.StoreConnectRetries, "retries for the initial store connection")
	registerInt(flags, name("store-connect-backoff"),
		defaults.StoreConnectBackoff, "milliseconds between store connection attempts")

	registerInt(flags, name("reconnect-attempts"),
		defaults.ReconnectAttempts, "reconnect attempts after the store connection breaks")
	registerInt(flags, name("reconnect-backoff"),
		defaults.ReconnectBackoff, "milliseconds between reconnect attempts")

	registerString(flags, name("node-id"),
		defaults.NodeID, "stable node id (a random one is generated when empty)")
	registerInt(flags, name("heartbeat-period"),
		defaults.HeartbeatPeriod, "milliseconds between heartbeats")

	registerBool(flags, name("api-enabled"),
		defaults.APIEnabled, "enable the node api server")
	registerString(flags, name("bind-ip"),
		defaults.BindIP, "ip address to bind the api server to")
	registerInt(flags, name("bind-port"),
		defaults.BindPort, "port to bind the api server to")

	registerBool(flags, name("debug"),
		defaults.Debug, "enable debug logging")
}
