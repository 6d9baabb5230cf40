// The agent keeps a platform session alive outside the browser: it logs in
// (or rehydrates a persisted session), renews the credential on a schedule,
// and exposes the session state over /healthz and Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/talentgate/talentgate-go/api"
	"github.com/talentgate/talentgate-go/internal/config"
	"github.com/talentgate/talentgate-go/internal/logging"
	"github.com/talentgate/talentgate-go/internal/metrics"
	"github.com/talentgate/talentgate-go/keycloak"
	"github.com/talentgate/talentgate-go/session"
	"github.com/talentgate/talentgate-go/storage"
)

const loginTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running agent: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	var (
		realm    = flag.String("realm", "", "realm to log in under (empty for candidate)")
		username = flag.String("username", "", "username to log in with; password comes from TALENTGATE_PASSWORD")
	)
	flag.Parse()

	c := config.New()
	displayAppname(c.GetAppName())
	logger := logging.New(c.GetEnv(), c.GetAppName())

	var storeOptions []storage.FileStoreOption
	if secret := c.GetStoreSecret(); secret != "" {
		storeOptions = append(storeOptions, storage.WithSealingSecret(secret))
	}
	store, err := storage.NewFileStore(filepath.Join(c.GetDataFolder(), "session.json"), storeOptions...)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	manager, err := session.New(session.Deps{
		Identity:  keycloak.New(c),
		Directory: api.New(c),
		Store:     store,
	}, c,
		session.WithLogger(logger),
		session.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}
	manager.Start()
	defer manager.Close()

	if *username != "" {
		ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
		err := manager.Login(ctx, *realm, *username, os.Getenv("TALENTGATE_PASSWORD"))
		cancel()
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	server := &http.Server{Addr: c.GetPort(), Handler: newHandler(manager)}
	go listenAndServe(server, logger)
	waitForStopSignal()
	return shutdown(server)
}

func newHandler(manager *session.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state":         manager.State(),
			"realm":         manager.Realm(),
			"authenticated": manager.IsAuthenticated(),
			"firstLogin":    manager.FirstLogin(),
		})
	})
	return mux
}

func listenAndServe(server *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", server.Addr).Msg("agent listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server stopped")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
