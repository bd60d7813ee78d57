package command

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AbduElrahman2001/BALHA/internal/httpapi"
	"github.com/AbduElrahman2001/BALHA/internal/telemetry"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Serve struct {
	Env *Env
}

func (cmd Serve) Command(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.main(ctx)
		},
	}
}

func (cmd Serve) main(ctx context.Context) error {
	cfg, err := cmd.Env.Config()
	if err != nil {
		return err
	}
	logger := cmd.Env.Logger

	shutdownTracing := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "balha",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	}, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracer shutdown")
		}
	}()

	a, err := cmd.Env.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := httpapi.NewHandler(a.Manager, httpapi.Options{
		Sessions: a.Sessions,
		Gate:     a.Gate,
		Notifier: a.Notifier,
		Metrics:  a.Metrics.Handler(),
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimit.PerMinute,
		IPBurst:           cfg.RateLimit.Burst,
		DevicePerMinute:   cfg.RateLimit.DevicePerMinute,
		DeviceBurst:       cfg.RateLimit.DeviceBurst,
		TrustForwardedFor: cfg.RateLimit.TrustProxy,
	})

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: otelhttp.NewHandler(
			httpapi.LoggingMiddleware(logger, a.Metrics,
				limiter.Middleware(httpapi.AuthMiddleware(a.Gate, handler.Routes()))),
			"balha",
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("balha listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.Wrap(err, "server error")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	logger.Info("balha stopped")
	return nil
}
