// Command stream logs task changes from the table's DynamoDB stream.
package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/tasktable/internal/config"
	"github.com/jacentio/tasktable/internal/logger"
	"github.com/jacentio/tasktable/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	h := stream.NewHandler(cfg.PartitionKey, logger.Setup(cfg.LogLevel))

	lambda.Start(h.HandleTaskChanges)
}
