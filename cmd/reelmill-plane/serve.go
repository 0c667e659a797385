package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"reelmill/internal/logging"
	"reelmill/internal/planeserver"
	"reelmill/internal/planestore"
)

const (
	defaultBind     = "127.0.0.1:7590"
	shutdownTimeout = 10 * time.Second
	version         = "dev"
)

type planeOptions struct {
	DSN         string
	Bind        string
	ObjectDir   string
	PublicURL   string
	Password    string
	AdminSecret string
	LogLevel    string
	LogFormat   string
}

func newRootCommand() *cobra.Command {
	opts := planeOptions{Bind: defaultBind}

	cmd := &cobra.Command{
		Use:           "reelmill-plane",
		Short:         "Serve the reelmill control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = os.Getenv("REELMILL_PLANE_PASSWORD")
			}
			if opts.AdminSecret == "" {
				opts.AdminSecret = os.Getenv("REELMILL_ADMIN_SECRET")
			}
			if opts.DSN == "" {
				opts.DSN = os.Getenv("REELMILL_PLANE_DSN")
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.DSN, "dsn", "", "SQLite path or postgres:// URL (default ./reelmill-plane.db)")
	flags.StringVar(&opts.Bind, "bind", opts.Bind, "Listen address")
	flags.StringVar(&opts.ObjectDir, "objects", "", "Artifact directory (default ./objects)")
	flags.StringVar(&opts.PublicURL, "public-url", "", "Base URL prefixed to artifact links")
	flags.StringVar(&opts.Password, "password", "", "Shared daemon secret (or REELMILL_PLANE_PASSWORD)")
	flags.StringVar(&opts.AdminSecret, "admin-secret", "", "Operator token signing secret (or REELMILL_ADMIN_SECRET)")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "Log level")
	flags.StringVar(&opts.LogFormat, "log-format", "console", "Log format (console or json)")
	return cmd
}

func (o *planeOptions) normalize() error {
	if strings.TrimSpace(o.Password) == "" {
		return errors.New("a daemon password is required (--password or REELMILL_PLANE_PASSWORD)")
	}
	if strings.TrimSpace(o.AdminSecret) == "" {
		return errors.New("an admin secret is required (--admin-secret or REELMILL_ADMIN_SECRET)")
	}
	if strings.TrimSpace(o.DSN) == "" {
		o.DSN = "reelmill-plane.db"
	}
	if strings.TrimSpace(o.ObjectDir) == "" {
		o.ObjectDir = "objects"
	}
	abs, err := filepath.Abs(o.ObjectDir)
	if err != nil {
		return fmt.Errorf("resolve object dir: %w", err)
	}
	o.ObjectDir = abs
	return os.MkdirAll(o.ObjectDir, 0o755)
}

// newPlane opens the store and builds the HTTP handler. The caller closes
// the returned store.
func newPlane(ctx context.Context, opts planeOptions, logger *slog.Logger) (*planestore.Store, http.Handler, error) {
	if err := opts.normalize(); err != nil {
		return nil, nil, err
	}
	store, err := planestore.Open(ctx, opts.DSN)
	if err != nil {
		return nil, nil, err
	}
	api := planeserver.New(store, planeserver.Config{
		Password:    opts.Password,
		AdminSecret: opts.AdminSecret,
		ObjectDir:   opts.ObjectDir,
		PublicURL:   opts.PublicURL,
		Version:     version,
	}, logger)
	return store, api.Handler(), nil
}

func serve(ctx context.Context, opts planeOptions) error {
	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           opts.LogFormat,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)

	store, handler, err := newPlane(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              opts.Bind,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("control plane listening",
		logging.String(logging.FieldEventType, "plane_started"),
		logging.String("bind", opts.Bind),
		logging.String("dsn_dialect", dialectName(opts.DSN)),
		logging.String("object_dir", opts.ObjectDir))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("control plane shutting down", logging.String(logging.FieldEventType, "plane_shutdown"))
	return srv.Shutdown(shutdownCtx)
}

func dialectName(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return string(planestore.DialectPostgres)
	}
	return string(planestore.DialectSQLite)
}
