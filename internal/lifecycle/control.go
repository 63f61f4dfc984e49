package lifecycle

import (
	"context"

	"github.com/sirupsen/logrus"

	"sinkguard/internal/control"
)

// controlServer is the subset of control.Server the shutdown sequence
// needs.
type controlServer interface {
	Shutdown(ctx context.Context) error
}

func (m *Manager) startControlInterface() controlServer {
	srv := control.New(m, m.cfg.Control.Port)
	go func() {
		if err := srv.Start(); err != nil {
			logrus.WithError(err).Error("control interface stopped unexpectedly")
		}
	}()
	return srv
}
