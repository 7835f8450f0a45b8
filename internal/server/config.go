package server

import (
	"github.com/autopeer-io/roverhub/internal/hub/notifier"
	"github.com/autopeer-io/roverhub/internal/hub/storage"
	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/pkg/options"
)

// Config is the fully built dependency set of the hub daemon.
type Config struct {
	HttpOptions *options.HttpOptions
	HubOptions  *options.HubOptions

	Store store.Store

	// Sinks and Archive are optional.
	Sinks   []notifier.Sink
	Archive *storage.MapArchive
}
