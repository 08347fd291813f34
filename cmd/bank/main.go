package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mnohosten/paygate/pkg/bank"
	"github.com/mnohosten/paygate/pkg/registry"
)

func main() {
	name := flag.String("name", "bank", "bank participant name, used as the registry entry")
	host := flag.String("host", "localhost", "bank participant host address")
	port := flag.Int("port", 9001, "bank participant port")
	dataDir := flag.String("data-dir", "./data", "directory for the credential bootstrap file and graceful-shutdown state snapshot")
	credentials := flag.String("credentials", "", "path to the credential bootstrap JSON file (defaults to <data-dir>/<name>-credentials.json)")
	holdTTL := flag.Duration("hold-ttl", 10*time.Second, "hold time-to-live; should exceed the coordinator's 2PC timeout")
	sweepEvery := flag.Duration("sweep-interval", time.Second, "background hold-expiry sweep interval")
	registryAddr := flag.String("registry", "", "registry base URL to self-register against (e.g. http://localhost:9100); empty disables registration")
	flag.Parse()

	cfg := bank.DefaultConfig(*name)
	cfg.HoldTTL = *holdTTL
	cfg.SweepEvery = *sweepEvery

	ledger := bank.New(cfg)
	defer ledger.Close()

	statePath := filepath.Join(*dataDir, *name+"-state.json")
	restored, err := ledger.LoadState(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ failed to load state snapshot: %v\n", err)
		os.Exit(1)
	} else if restored {
		fmt.Printf("💾 restored state from %s\n", statePath)
	}

	credPath := *credentials
	if credPath == "" {
		credPath = filepath.Join(*dataDir, *name+"-credentials.json")
	}
	if _, err := os.Stat(credPath); err == nil && !restored {
		if err := ledger.LoadCredentials(credPath); err != nil {
			fmt.Fprintf(os.Stderr, "❌ failed to load credentials: %v\n", err)
			os.Exit(1)
		}
	}

	svc := bank.NewService(ledger)
	addr := fmt.Sprintf("%s:%d", *host, *port)
	httpSrv := &http.Server{Addr: addr, Handler: svc.Router()}

	if *registryAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := registry.NewClient(*registryAddr).Register(ctx, "bank/"+*name, fmt.Sprintf("http://%s", addr))
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  registry registration failed: %v\n", err)
		}
	}

	fmt.Printf("🚀 bank participant %q starting on http://%s\n", *name, addr)

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
		shutdown(httpSrv, ledger, statePath, *registryAddr, "bank/"+*name)
	}
}

func shutdown(httpSrv *http.Server, ledger *bank.Ledger, statePath, registryAddr, registryName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ shutdown error: %v\n", err)
	}
	if err := ledger.SaveState(statePath); err != nil {
		fmt.Fprintf(os.Stderr, "❌ failed to save state snapshot: %v\n", err)
	}
	if registryAddr != "" {
		deregisterCtx, deregisterCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := registry.NewClient(registryAddr).Deregister(deregisterCtx, registryName); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  registry deregistration failed: %v\n", err)
		}
		deregisterCancel()
	}
	fmt.Println("🛑 bank participant stopped")
}
