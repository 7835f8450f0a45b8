package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"github.com/autopeer-io/roverhub/cmd/rover-hub/app/options"
	"github.com/autopeer-io/roverhub/internal/server"
	"github.com/autopeer-io/roverhub/pkg/app"
	"github.com/autopeer-io/roverhub/pkg/log"
)

const (
	commandName = "rover-hub"
	commandDesc = `The Rover Hub relays commands, telemetry and status between rovers and
operator frontends over WebSocket, keeps the rover registry and command log,
and optionally mirrors hub events to MQTT, Kafka and InfluxDB.`
)

func NewApp() *app.App {
	opts := options.NewServerOptions()
	application := app.NewApp(
		commandName,
		"Launch a rover hub server",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		// Route klog output from the k8s libraries through the hub logger.
		klog.SetLogger(log.Std().Logr().WithName("klog"))
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config(ctx)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		return server.NewManager(cfg).Start(ctx)
	}
}
