package options

import (
	"encoding/json"
	"runtime"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/strand-sched/strand/pkg/check"
	"github.com/strand-sched/strand/pkg/logger"
)

// Options stores all the configurable options for the strand node daemon.
type Options struct {
	ConfigFile string `json:"config_file"`

	StoreHost string `json:"store_host"`
	StorePort int    `json:"store_port"`

	// StoreConnectRetries and StoreConnectBackoff govern the initial
	// connection only; exhausting the retries aborts the process.
	StoreConnectRetries int `json:"store_connect_retries"`
	StoreConnectBackoff int `json:"store_connect_backoff"` // milliseconds

	// ReconnectAttempts and ReconnectBackoff govern recovery after the store
	// connection breaks at runtime.
	ReconnectAttempts int `json:"reconnect_attempts"`
	ReconnectBackoff  int `json:"reconnect_backoff"` // milliseconds

	NodeID    string             `json:"node_id"`
	Resources map[string]float64 `json:"resources"`

	HeartbeatPeriod int `json:"heartbeat_period"` // milliseconds

	APIEnabled bool   `json:"api_enabled"`
	BindIP     string `json:"bind_ip"`
	BindPort   int    `json:"bind_port"`

	Log logger.Config `json:"log"`

	Debug bool `json:"debug"`
}

// DefaultOptions returns the default configuration of the node daemon.
func DefaultOptions() *Options {
	return &Options{
		StorePort:           6379,
		StoreConnectRetries: 5,
		StoreConnectBackoff: 1000,
		ReconnectAttempts:   5,
		ReconnectBackoff:    5000,
		HeartbeatPeriod:     1000,
		BindIP:              "0.0.0.0",
		BindPort:            9750,
		Log:                 *logger.DefaultConfig(),
	}
}

// Validate validates the state of the Options struct.
func (o Options) Validate() []error {
	errs := []error{
		check.NotEmpty(o.StoreHost, "store host must be provided"),
		check.BetweenInclusive(o.StorePort, 1, 65535, "store port must be in the range 1-65535"),
		check.GreaterThanOrEqualTo(o.StoreConnectRetries, 0, "store connect retries must not be negative"),
		check.GreaterThan(o.StoreConnectBackoff, 0, "store connect backoff must be positive"),
		check.GreaterThan(o.ReconnectAttempts, 0, "reconnect attempts must be positive"),
		check.GreaterThan(o.ReconnectBackoff, 0, "reconnect backoff must be positive"),
		check.GreaterThan(o.HeartbeatPeriod, 0, "heartbeat period must be positive"),
		check.BetweenInclusive(o.BindPort, 1, 65535, "bind port must be in the range 1-65535"),
	}
	if o.NodeID != "" {
		if _, err := uuid.Parse(o.NodeID); err != nil {
			errs = append(errs, errors.Wrap(err, "node id must be a valid uuid"))
		}
	}
	for name, quantity := range o.Resources {
		if quantity <= 0 {
			errs = append(errs, errors.Errorf("resource %q must have a positive quantity", name))
		}
	}
	return errs
}

// Printable returns a printable string.
func (o Options) Printable() ([]byte, error) {
	optJSON, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return optJSON, nil
}

// Resolve fully resolves the daemon configuration, handling dynamic defaults.
func (o *Options) Resolve() {
	if o.NodeID == "" {
		o.NodeID = uuid.New().String()
	}
	if len(o.Resources) == 0 {
		o.Resources = map[string]float64{"CPU": float64(runtime.NumCPU())}
	}
	if o.Debug {
		o.Log.Level = "debug"
	}
}
