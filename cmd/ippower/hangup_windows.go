package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/muurk/ippower/internal/engine"
)

// reloadOnHangup does nothing; Windows has no SIGHUP
func reloadOnHangup(ctx context.Context, cmd *cobra.Command, eng *engine.Engine) {}
