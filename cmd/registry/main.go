package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mnohosten/paygate/pkg/registry"
)

func main() {
	host := flag.String("host", "localhost", "registry host address")
	port := flag.Int("port", 9100, "registry port")
	flag.Parse()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	svc := registry.NewService(registry.New())

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: svc.Router(),
	}

	fmt.Printf("🚀 registry starting on http://%s\n", addr)

	errChan := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	case sig := <-sigChan:
		fmt.Printf("\n⚠️  received signal: %v\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "❌ shutdown error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("🛑 registry stopped")
	}
}
