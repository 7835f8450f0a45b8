package options

import (
	"context"
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/roverhub/internal/hub/notifier"
	"github.com/autopeer-io/roverhub/internal/hub/storage"
	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/internal/server"
	"github.com/autopeer-io/roverhub/pkg/app"
	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/options"
)

type ServerOptions struct {
	HttpOptions   *options.HttpOptions   `json:"http" mapstructure:"http"`
	HubOptions    *options.HubOptions    `json:"hub" mapstructure:"hub"`
	StoreOptions  *options.StoreOptions  `json:"store" mapstructure:"store"`
	MqttOptions   *options.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	KafkaOptions  *options.KafkaOptions  `json:"kafka" mapstructure:"kafka"`
	InfluxOptions *options.InfluxOptions `json:"influx" mapstructure:"influx"`
	S3Options     *options.S3Options     `json:"s3" mapstructure:"s3"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*ServerOptions)(nil)

func NewServerOptions() *ServerOptions {
	o := &ServerOptions{
		HttpOptions:   options.NewHttpOptions(),
		HubOptions:    options.NewHubOptions(),
		StoreOptions:  options.NewStoreOptions(),
		MqttOptions:   options.NewMqttOptions(),
		KafkaOptions:  options.NewKafkaOptions(),
		InfluxOptions: options.NewInfluxOptions(),
		S3Options:     options.NewS3Options(),
		Log:           log.NewOptions(),
	}
	o.Log.Name = "rover-hub"

	return o
}

func (o *ServerOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.HubOptions.AddFlags(fss.FlagSet("hub"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.KafkaOptions.AddFlags(fss.FlagSet("kafka"))
	o.InfluxOptions.AddFlags(fss.FlagSet("influx"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ServerOptions) Complete() error {
	return nil
}

func (o *ServerOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.HubOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.KafkaOptions.Validate()...)
	errs = append(errs, o.InfluxOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// Config opens the store and connects every enabled external system.
func (o *ServerOptions) Config(ctx context.Context) (*server.Config, error) {
	st, err := o.openStore()
	if err != nil {
		return nil, err
	}

	cfg := &server.Config{
		HttpOptions: o.HttpOptions,
		HubOptions:  o.HubOptions,
		Store:       st,
	}

	cfg.Sinks, err = notifier.NewSinks(ctx, o.MqttOptions, o.KafkaOptions, o.InfluxOptions)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create event mirrors: %w", err)
	}

	if o.S3Options.Enabled() {
		archive, err := storage.NewMapArchive(o.S3Options)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		if err := archive.CheckBucket(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		cfg.Archive = archive
	}

	return cfg, nil
}

func (o *ServerOptions) openStore() (store.Store, error) {
	switch o.StoreOptions.Driver {
	case options.StoreDriverSQLite:
		log.Info("Opening SQLite store", "path", o.StoreOptions.Path)
		return store.OpenSQLite(o.StoreOptions.Path)
	default:
		log.Info("Using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}
}
