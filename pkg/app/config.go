package app

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/roverhub/pkg/log"
)

const configFlagName = "config"

// logLevelKey is re-applied whenever the config file changes on disk.
const logLevelKey = "log.level"

type config struct {
	file string
	v    *viper.Viper
}

func newConfig(basename string) *config {
	v := viper.New()
	v.SetEnvPrefix(envPrefix(basename))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &config{v: v}
}

// envPrefix turns "rover-hub" into "ROVERHUB".
func envPrefix(basename string) string {
	return strings.ToUpper(strings.ReplaceAll(basename, "-", ""))
}

func (c *config) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.file, configFlagName, "c", c.file, "Read configuration from specified `FILE` (YAML, JSON or TOML).")
}

// load merges flags, environment and the config file into opts. Explicit
// flags win over the environment, which wins over the file.
func (c *config) load(fs *pflag.FlagSet, opts any) error {
	if err := c.v.BindPFlags(fs); err != nil {
		return err
	}

	if c.file != "" {
		c.v.SetConfigFile(c.file)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file %q: %w", c.file, err)
		}
		c.watch()
	}

	if err := c.v.Unmarshal(opts); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

func (c *config) watch() {
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := c.v.GetString(logLevelKey)
		log.SetLevel(level)
		log.Info("Configuration reloaded", "file", e.Name, "level", level)
	})
	c.v.WatchConfig()
}
