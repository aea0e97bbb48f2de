package main

import (
	"context"
	"log"

	"memorymap/internal/app"
	"memorymap/internal/config"
	httpx "memorymap/internal/http"
	"memorymap/internal/logging"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var chiLambda *chiadapter.ChiLambdaV2

// The function serves the request/response routes only. Live updates need a
// long-lived connection and are left to the server binary.
func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("build app", zap.Error(err))
	}

	mux, ok := httpx.NewRouter(a.Deps(nil)).(*chi.Mux)
	if !ok {
		logger.Fatal("router is not a chi mux")
	}
	chiLambda = chiadapter.NewV2(mux)
}

func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
