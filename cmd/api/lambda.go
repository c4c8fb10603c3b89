package main

import (
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// runningOnLambda reports whether the process was started by the Lambda runtime.
func runningOnLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// startLambda serves API Gateway HTTP API (payload v2) events with the same
// handler chain the standalone server uses. It blocks for the life of the
// execution environment.
func startLambda(handler http.Handler) {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
