package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*InfluxOptions)(nil)

// InfluxOptions configures the optional InfluxDB writer for telemetry samples.
type InfluxOptions struct {
	URL         string `json:"url" mapstructure:"url"`
	Token       string `json:"token" mapstructure:"token"`
	Org         string `json:"org" mapstructure:"org"`
	Bucket      string `json:"bucket" mapstructure:"bucket"`
	Measurement string `json:"measurement" mapstructure:"measurement"`
}

func NewInfluxOptions() *InfluxOptions {
	return &InfluxOptions{
		Org:         "rovers",
		Bucket:      "telemetry",
		Measurement: "telemetry",
	}
}

func (o *InfluxOptions) Enabled() bool {
	return o != nil && o.URL != ""
}

func (o *InfluxOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}
	var errs []error
	if o.Org == "" || o.Bucket == "" {
		errs = append(errs, fmt.Errorf("--influx.org and --influx.bucket are required when --influx.url is set"))
	}
	return errs
}

func (o *InfluxOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.URL, "influx.url", o.URL, "InfluxDB URL for telemetry time series (empty disables the writer).")
	fs.StringVar(&o.Token, "influx.token", o.Token, "InfluxDB API token.")
	fs.StringVar(&o.Org, "influx.org", o.Org, "InfluxDB organization.")
	fs.StringVar(&o.Bucket, "influx.bucket", o.Bucket, "InfluxDB bucket receiving telemetry points.")
	fs.StringVar(&o.Measurement, "influx.measurement", o.Measurement, "Measurement name for telemetry points.")
}
