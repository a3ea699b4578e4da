package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/janisto/chatmate/internal/http/health"
	"github.com/janisto/chatmate/internal/http/v1/routes"
	"github.com/janisto/chatmate/internal/http/v1/session"
	"github.com/janisto/chatmate/internal/platform/auth"
	"github.com/janisto/chatmate/internal/platform/config"
	"github.com/janisto/chatmate/internal/platform/firebase"
	applog "github.com/janisto/chatmate/internal/platform/logging"
	appmiddleware "github.com/janisto/chatmate/internal/platform/middleware"
	"github.com/janisto/chatmate/internal/platform/respond"
	"github.com/janisto/chatmate/internal/service/blob"
	"github.com/janisto/chatmate/internal/service/identity"
	"github.com/janisto/chatmate/internal/service/profile"
	sessionsvc "github.com/janisto/chatmate/internal/service/session"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

const (
	apiPrefix = "/v1"
	docsPath  = "/api-docs"
	// Sign-up bodies carry the profile image inline.
	maxRequestBytes = 8 << 20
)

// backends are the services a server instance talks to.
type backends struct {
	identity  identity.Factory
	verifier  auth.Verifier
	profiles  profile.Store
	blobs     blob.Store
	exchanger session.CodeExchanger
	close     func() error
}

func main() {
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(context.Background(), "logger sync error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(context.Background(), "logger init error", err)
	}

	if err := run(); err != nil {
		applog.LogError(context.Background(), "server failed", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applog.Configure(applog.Options{Level: cfg.LogLevel, Service: "chatmate", Version: Version}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	applog.SetProjectID(cfg.ProjectID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := newBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			applog.LogError(context.Background(), "backend close error", err)
		}
	}()

	registry := sessionsvc.NewRegistry(sessionsvc.RegistryConfig{
		Identity:    b.identity,
		Profiles:    b.profiles,
		Blobs:       b.blobs,
		IdleTimeout: cfg.SessionIdleTimeout,
	})
	go registry.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(registry, b.verifier, b.exchanger),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		// No WriteTimeout: session event streams stay open.
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 64 << 10, // 64 KB
	}

	listenErr := make(chan error, 1)
	go func() {
		applog.LogInfo(context.Background(), "server listening",
			zap.String("addr", srv.Addr),
			zap.String("authBackend", cfg.AuthBackend),
			zap.String("storeBackend", cfg.StoreBackend),
			zap.String("blobBackend", cfg.BlobBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-listenErr:
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-stop:
		applog.LogInfo(context.Background(), "shutdown signal received")
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.LogError(shutdownCtx, "server shutdown error", err)
	}
	applog.LogInfo(context.Background(), "server exited")
	return nil
}

func newBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{close: func() error { return nil }}

	var clients *firebase.Clients
	if cfg.NeedsFirebase() {
		var err error
		clients, err = firebase.InitializeClients(ctx, firebase.Config{
			ProjectID:                    cfg.ProjectID,
			GoogleApplicationCredentials: cfg.GoogleApplicationCredentials,
			StorageBucket:                cfg.StorageBucket,
		})
		if err != nil {
			return nil, err
		}
		b.close = clients.Close
	}

	switch cfg.AuthBackend {
	case config.BackendFirebase:
		b.identity = identity.NewFirebaseFactory(identity.FirebaseConfig{
			APIKey:       cfg.APIKey,
			EmulatorHost: cfg.AuthEmulatorHost,
		})
		b.verifier = auth.NewFirebaseVerifier(clients.Auth)
	default:
		dir := identity.NewDirectory()
		b.identity = dir
		b.verifier = directoryVerifier(dir)
	}

	switch cfg.StoreBackend {
	case config.BackendFirebase:
		b.profiles = profile.NewFirestoreStore(clients.Firestore)
	default:
		b.profiles = profile.NewMemoryStore()
	}

	switch cfg.BlobBackend {
	case config.BackendFirebase:
		store, err := blob.NewFirebaseStore(clients.Storage, cfg.StorageBucket)
		if err != nil {
			_ = b.close()
			return nil, err
		}
		b.blobs = store
	case config.BackendS3:
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PresignExpiry: cfg.S3.PresignExpiry,
		})
		if err != nil {
			_ = b.close()
			return nil, err
		}
		b.blobs = store
	default:
		b.blobs = blob.NewMemoryStore()
	}

	if cfg.GoogleOAuth.Enabled() {
		b.exchanger = identity.NewGoogleCodeExchanger(
			cfg.GoogleOAuth.ClientID, cfg.GoogleOAuth.ClientSecret, cfg.GoogleOAuth.RedirectURL, nil)
	}
	return b, nil
}

// directoryVerifier accepts ID tokens issued by the in-process directory.
func directoryVerifier(dir *identity.Directory) auth.Verifier {
	return auth.VerifierFunc(func(_ context.Context, token string) (*auth.Caller, error) {
		p, ok := dir.Lookup(token)
		if !ok {
			return nil, auth.ErrInvalidToken
		}
		return &auth.Caller{UID: p.ID, Email: p.Email}, nil
	})
}

func newRouter(registry *sessionsvc.Registry, verifier auth.Verifier, exchanger session.CodeExchanger) http.Handler {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	// Base middleware stack
	router.Use(
		appmiddleware.Security(apiPrefix+docsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP extracts client IP from X-Real-IP or X-Forwarded-For headers.
		// SECURITY: Only use behind a trusted reverse proxy (e.g., Cloud Run, nginx).
		chimiddleware.RealIP,
		chimiddleware.RequestSize(maxRequestBytes),
		applog.RequestLogger(),
		applog.AccessLogger(),
		respond.Recoverer(),
	)

	router.Get("/health", health.NewHandler(Version, registry.Len))

	router.Route(apiPrefix, func(r chi.Router) {
		r.NotFound(respond.NotFoundHandler())
		r.MethodNotAllowed(respond.MethodNotAllowedHandler())

		cfg := huma.DefaultConfig("ChatMate API", Version)
		cfg.DocsPath = docsPath
		cfg.Servers = []*huma.Server{{URL: apiPrefix}}
		cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			"bearerAuth": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		}
		api := humachi.New(r, cfg)

		// Add CBOR content type to OpenAPI requests and responses
		api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation,
			func(_ *huma.OpenAPI, op *huma.Operation) {
				if op.RequestBody != nil && op.RequestBody.Content != nil {
					if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
						op.RequestBody.Content["application/cbor"] = jsonContent
					}
				}
				for _, resp := range op.Responses {
					if resp.Content == nil {
						continue
					}
					if jsonContent, ok := resp.Content["application/json"]; ok {
						resp.Content["application/cbor"] = jsonContent
					}
				}
			},
		)

		routes.Register(api, verifier, registry, exchanger)
	})
	return router
}
