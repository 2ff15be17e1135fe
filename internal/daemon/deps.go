// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServerConfig is the listen side of the daemon.
type ServerConfig struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
}

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// Server is the API server. Its Addr is replaced by ServerConfig.ListenAddr.
	Server *http.Server
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.Server == nil || d.Server.Handler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
