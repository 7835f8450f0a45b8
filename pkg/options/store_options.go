package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
)

// StoreOptions selects the persistent store backing rovers, sessions,
// command logs and telemetry samples.
type StoreOptions struct {
	Driver string `json:"driver" mapstructure:"driver"`

	// Path is the SQLite database file. Ignored by the memory driver.
	Path string `json:"path" mapstructure:"path"`
}

func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Driver: StoreDriverMemory,
		Path:   "/var/lib/rover-hub/hub.db",
	}
}

func (o *StoreOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case StoreDriverMemory:
	case StoreDriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("--store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", o.Driver))
	}
	return errs
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "store.driver", o.Driver, "Persistent store driver ('memory' or 'sqlite').")
	fs.StringVar(&o.Path, "store.path", o.Path, "SQLite database file used by the sqlite driver.")
}
