// Command codex-invalidate is the DynamoDB Streams Lambda that keeps the
// shared cache in line with writes from other processes.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/codex/internal/bootstrap"
	"github.com/jacentio/codex/stream"
)

func main() {
	env, err := bootstrap.Open(context.Background())
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer env.Close()

	handler := stream.NewHandler(env.Store, env.Logger)
	lambda.Start(handler.HandleInvalidation)
}
