package server

import (
	"context"
	"net/http"

	slogctx "github.com/veqryn/slog-context"
)

type pingBody struct {
	Result string `json:"result"`
}

func ping(ctx context.Context, _ http.ResponseWriter, _ *http.Request, _ any) (any, error) {
	slogctx.Debug(ctx, "Answering ping")

	return jsonResponse{status: http.StatusOK, body: pingBody{Result: "pong"}}, nil
}
