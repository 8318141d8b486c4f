package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/domudall/3rd-party-oauth/internal/config"
	"github.com/domudall/3rd-party-oauth/internal/crypto"
	"github.com/domudall/3rd-party-oauth/internal/filter"
	"github.com/domudall/3rd-party-oauth/internal/idp"
	"github.com/domudall/3rd-party-oauth/internal/log"
	"github.com/domudall/3rd-party-oauth/internal/proxy"
	"github.com/domudall/3rd-party-oauth/internal/server"
)

// OAuthFilter represents the complete authentication filter application
type OAuthFilter struct {
	config     config.Config
	httpServer *server.HTTPServer
}

// NewOAuthFilter creates the filter application with all dependencies built
func NewOAuthFilter(ctx context.Context, cfg config.Config) (*OAuthFilter, error) {
	log.LogInfoWithFields("oauthfilter", "Building authentication filter", map[string]any{
		"addr":     cfg.Addr,
		"upstream": cfg.Upstream,
	})

	upstreamURL, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	// The session key is derived from the client secret, so a secret
	// rotation invalidates every outstanding session
	encryptor, err := crypto.NewEncryptor([]byte(cfg.Auth.ClientSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	provider := idp.NewProvider(cfg.Auth)
	authFilter := filter.New(cfg.Auth, provider, encryptor)
	upstream := proxy.New(upstreamURL)

	mux := buildHTTPHandler(authFilter, upstream)
	httpServer := server.NewHTTPServer(mux, cfg.Addr)

	return &OAuthFilter{
		config:     cfg,
		httpServer: httpServer,
	}, nil
}

// buildHTTPHandler assembles the routing and middleware chain
func buildHTTPHandler(authFilter *filter.Filter, upstream http.Handler) http.Handler {
	mux := http.NewServeMux()

	logger := server.NewLoggerMiddleware("filter")
	filterRecover := server.NewRecoverMiddleware("filter")

	mux.Handle("/healthz", server.NewHealthHandler())

	// Everything else goes through the filter, callback and logout included
	mux.Handle("/", server.ChainMiddleware(authFilter.Middleware(upstream), logger, filterRecover))

	return mux
}

// Run starts the application and blocks until shutdown
func (o *OAuthFilter) Run() error {
	log.LogInfoWithFields("oauthfilter", "Starting authentication filter", map[string]any{
		"addr": o.config.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel to signal errors that should trigger shutdown
	errChan := make(chan error, 1)

	go func() {
		if err := o.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("oauthfilter", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("oauthfilter", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("oauthfilter", "Context cancelled, shutting down", nil)
	}

	log.LogInfoWithFields("oauthfilter", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := o.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("oauthfilter", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("oauthfilter", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}
