// Command lambda serves the task API from API Gateway HTTP API events.
package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/tasktable/internal/app"
	"github.com/jacentio/tasktable/internal/config"
	"github.com/jacentio/tasktable/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	a := app.New(cfg, logger.Setup(cfg.LogLevel))

	lambda.Start(app.LambdaHandler(a.Router))
}
