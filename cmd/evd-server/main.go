// Command evd-server runs the encrypted vector database server over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/snuhcs-course/swpp-2025-project-team-07/evdserver"
)

func main() {
	addr := flag.String("addr", ":7683", "listen address")
	flag.Parse()

	logOut := os.Stderr
	if path := os.Getenv("EVD_SERVER_LOG_PATH"); path != "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file %s: %v\n", path, err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	handler := evdserver.NewHandler(evdserver.NewRegistry(), logger)
	server := &http.Server{Addr: *addr, Handler: handler}

	handler.Shutdown = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}

	logger.Info("listening", "addr", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
