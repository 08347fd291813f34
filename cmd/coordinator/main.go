package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mnohosten/paygate/pkg/coordinator"
	"github.com/mnohosten/paygate/pkg/registry"
	"github.com/mnohosten/paygate/pkg/token"
)

// bankFlag collects repeated -bank name=url flags into a map.
type bankFlag map[string]string

func (b bankFlag) String() string {
	parts := make([]string, 0, len(b))
	for name, url := range b {
		parts = append(parts, name+"="+url)
	}
	return strings.Join(parts, ",")
}

func (b bankFlag) Set(value string) error {
	name, url, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("expected name=url, got %q", value)
	}
	b[name] = url
	return nil
}

func main() {
	host := flag.String("host", "localhost", "coordinator host address")
	port := flag.Int("port", 9000, "coordinator port")
	logPath := flag.String("log-path", "./data/coordinator.log", "path to the durable idempotency-registry log")
	timeout2PC := flag.Duration("timeout-2pc", 5*time.Second, "deadline for the prepare phase")
	tokenTTL := flag.Duration("token-ttl", time.Hour, "validity of an issued bearer token")
	registryAddr := flag.String("registry", "", "registry base URL to resolve bank participants from (e.g. http://localhost:9100)")
	enableEvents := flag.Bool("events", false, "enable the /admin/events websocket observability stream")
	banks := bankFlag{}
	flag.Var(banks, "bank", "bank participant as name=url; repeatable; overrides registry lookups for that name")
	flag.Parse()

	cfg := coordinator.DefaultConfig()
	cfg.Host = *host
	cfg.Port = *port
	cfg.LogPath = *logPath
	cfg.Timeout2PC = *timeout2PC
	cfg.TokenTTL = *tokenTTL

	reg, recoveredInFlight, err := coordinator.OpenRegistry(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ failed to open durable registry log: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	directory := coordinator.NewDirectory()
	for name, url := range banks {
		directory.Register(name, coordinator.NewParticipantClient(name, url, 10*time.Second))
	}
	if *registryAddr != "" {
		if err := resolveBanksFromRegistry(directory, *registryAddr, banks); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  registry resolution failed: %v\n", err)
		}
	}

	issuer, err := token.NewIssuer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ failed to create token issuer: %v\n", err)
		os.Exit(1)
	}

	var events *coordinator.EventBroadcaster
	if *enableEvents {
		events = coordinator.NewEventBroadcaster()
	}

	coord := coordinator.New(cfg, directory, reg, events)

	if len(recoveredInFlight) > 0 {
		fmt.Printf("⚠️  sweeping %d in-flight transfer(s) left over from a previous run\n", len(recoveredInFlight))
		coord.SweepInFlight(recoveredInFlight)
	}

	svc := coordinator.NewService(coord, directory, issuer, events, cfg.TokenTTL)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	httpSrv := &http.Server{Addr: addr, Handler: svc.Router()}

	if *registryAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := registry.NewClient(*registryAddr).Register(ctx, "coordinator", fmt.Sprintf("http://%s", addr))
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  registry registration failed: %v\n", err)
		}
	}

	fmt.Printf("🚀 coordinator starting on http://%s\n", addr)
	if events != nil {
		fmt.Printf("🔌 admin event stream: ws://%s/admin/events\n", addr)
	}

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
		}
		if *registryAddr != "" {
			deregisterCtx, deregisterCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := registry.NewClient(*registryAddr).Deregister(deregisterCtx, "coordinator"); err != nil {
				fmt.Fprintf(os.Stderr, "⚠️  registry deregistration failed: %v\n", err)
			}
			deregisterCancel()
		}
		fmt.Println("🛑 coordinator stopped")
	}
}

// resolveBanksFromRegistry registers a ParticipantClient for every
// "bank/<name>" entry the registry knows about, skipping names already
// pinned by an explicit -bank flag.
func resolveBanksFromRegistry(directory *coordinator.Directory, registryAddr string, pinned bankFlag) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := registry.NewClient(registryAddr).List(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name, ok := strings.CutPrefix(entry.Name, "bank/")
		if !ok {
			continue
		}
		if _, pinnedAlready := pinned[name]; pinnedAlready {
			continue
		}
		directory.Register(name, coordinator.NewParticipantClient(name, entry.Address, 10*time.Second))
	}
	return nil
}
