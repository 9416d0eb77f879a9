package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/glassechidna/lambdalogs/config"
	"github.com/glassechidna/lambdalogs/logging"
	"github.com/glassechidna/lambdalogs/store"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	telemetry, err := logging.Setup(ctx, cfg)
	if err != nil {
		panic(err)
	}

	if cfg.DatabaseURL == "" && cfg.DatabaseURLParameter != "" {
		sess, err := session.NewSessionWithOptions(session.Options{
			Profile:                 os.Getenv("AWS_PROFILE"),
			SharedConfigState:       session.SharedConfigEnable,
			AssumeRoleTokenProvider: stscreds.StdinTokenProvider,
		})
		if err != nil {
			panic(err)
		}

		if err := cfg.ResolveDatabaseURL(ctx, ssm.New(sess)); err != nil {
			slog.ErrorContext(ctx, "resolving database url", "error", err)
		}
	}

	in := NewIngester(cfg, store.NewOpener(cfg.Store()), telemetry)
	lambda.Start(in.Handle)
}
