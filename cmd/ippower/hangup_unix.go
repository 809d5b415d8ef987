//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/logging"
)

// reloadOnHangup reconfigures the engine on SIGHUP until ctx ends
func reloadOnHangup(ctx context.Context, cmd *cobra.Command, eng *engine.Engine) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			logging.Error("Config reload failed", zap.Error(err))
			continue
		}
		if cfg.Device.Password == "" {
			// Keep a password that was prompted for at startup
			cfg.Device.Password = eng.Config().Password
		}
		if cfg.Device == eng.Config() {
			logging.Info("Config reloaded, device unchanged")
			continue
		}
		if err := eng.Reconfigure(ctx, cfg.Device); err != nil {
			logging.Error("Reconfigure failed", zap.Error(err))
			continue
		}
		logging.Info("Engine reconfigured", zap.String("device", cfg.Device.Address))
	}
}
