package main

// Build the API Lambda binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http
// Contracts and runs live in Postgres; RESULT_STORE=sqlite is not usable here.

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"compliance-backend/internal/bootstrap"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/server/respond"
	"compliance-backend/internal/shared/telemetry"
)

var (
	initOnce  sync.Once
	initErr   error
	ginLambda *ginadapter.GinLambdaV2
)

func initApp() {
	cfg := config.Load()
	telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	app, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		telemetry.Error("lambda.http.bootstrap_failed", map[string]any{"error": err.Error()})
		return
	}
	ginLambda = ginadapter.NewV2(app.Router)
	telemetry.Info("lambda.http.cold_start", map[string]any{"env": cfg.Env})
}

// errorResponse returns the API's standard error body. Returning a Go error
// instead would surface as a bare 502 from API Gateway.
func errorResponse(message string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(respond.ErrorResponse{Error: respond.ErrorBody{Code: respond.CodeInternal, Message: message}})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil || ginLambda == nil {
		return errorResponse("service unavailable"), nil
	}
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(handler)
}
