package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		zap.L().Error("dashboardd exited", zap.Error(err))
		os.Exit(1)
	}
}
