// Command codex-refresh is the scheduled Lambda that refreshes stored
// records of the types listed in CODEX_REFRESH_TYPES.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/codex/internal/bootstrap"
	"github.com/jacentio/codex/maintenance"
	"github.com/jacentio/codex/store"
)

func main() {
	env, err := bootstrap.Open(context.Background())
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer env.Close()

	if len(env.Config.RefreshTypes) == 0 {
		env.Logger.Warn("no refresh types configured")
	}
	handler := maintenance.NewHandler(
		store.NewReconciler(env.Store),
		env.Config.RefreshTypes,
		env.Config.RefreshMargin,
		env.Logger,
	)
	lambda.Start(handler.HandleScheduled)
}
