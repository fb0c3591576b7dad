package handlers_test

import (
	"io"
	"log/slog"
)

func handlersLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
