package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/strand-sched/strand/internal"
	"github.com/strand-sched/strand/internal/options"
	"github.com/strand-sched/strand/pkg/check"
	"github.com/strand-sched/strand/pkg/logger"
	"github.com/strand-sched/strand/version"
)

const defaultConfigPath = "/etc/strand/node.yaml"

func newRunCmd() *cobra.Command {
	opts := options.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the strand node daemon",
		Args:  cobra.NoArgs,
	}
	registerConfig(cmd.Flags())

	cmd.RunE = func(*cobra.Command, []string) error {
		// At this point viper holds defaults plus whatever flags and
		// environment variables overrode them; materialize that into opts so
		// the config file location is known.
		bs, err := json.Marshal(v.AllSettings())
		if err != nil {
			return errors.Wrap(err, "cannot marshal configuration map into json bytes")
		}
		if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
			return errors.Wrap(err, "cannot unmarshal configuration")
		}

		// Merge the config file underneath the flag and environment layers.
		bs, err = readConfigFile(opts.ConfigFile)
		if err != nil {
			return err
		}
		opts, err = mergeConfigIntoViper(bs)
		if err != nil {
			return err
		}

		opts.Resolve()
		if err = check.Validate(*opts); err != nil {
			return errors.Wrap(err, "command-line arguments specify illegal configuration")
		}

		logger.SetLogrus(opts.Log)

		if err := internal.Run(context.Background(), version.Version, *opts); err != nil {
			log.Fatal(err)
		}
		return nil
	}

	return cmd
}

func mergeConfigIntoViper(bs []byte) (*options.Options, error) {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal yaml configuration file")
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return nil, errors.Wrap(err, "can't merge configuration to viper")
	}

	// Viper now layers every source, with flag > env > config > default
	// precedence; read the result back into a fresh Options.
	return getNodeConfig(v.AllSettings())
}

// readConfigFile loads the config file. A missing file is only an error when
// the user pointed at it explicitly.
func readConfigFile(configPath string) ([]byte, error) {
	isDefault := configPath == ""
	if isDefault {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); err != nil {
		if isDefault && os.IsNotExist(err) {
			log.Warnf("no configuration file at %s, skipping", configPath)
			return nil, nil
		}
		return nil, errors.Wrap(err, "error finding configuration file")
	}

	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}

func getNodeConfig(settings map[string]interface{}) (*options.Options, error) {
	bs, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}

	opts := &options.Options{}
	if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	return opts, nil
}
