package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cloudportal/projectd/internal/apiclient"
	"github.com/cloudportal/projectd/internal/cache"
	"github.com/cloudportal/projectd/internal/cloudkitty"
	"github.com/cloudportal/projectd/internal/config"
	"github.com/cloudportal/projectd/internal/domain/project"
	"github.com/cloudportal/projectd/internal/domain/usage"
	"github.com/cloudportal/projectd/internal/gardener"
	"github.com/cloudportal/projectd/internal/mcp"
	"github.com/cloudportal/projectd/internal/openstack"
	"github.com/cloudportal/projectd/internal/repository"
	"github.com/cloudportal/projectd/internal/sqlite"
	"github.com/cloudportal/projectd/internal/tasks"
	"github.com/cloudportal/projectd/internal/transport"
	"github.com/coder/quartz"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// localUser acts for every request when authentication is off.
var localUser = &project.User{
	ID:          "local",
	Username:    "local",
	IsAdmin:     true,
	Permissions: map[string]bool{project.PermManageAllOrganizationProjects: true},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("PROJECTD_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	store, closeStore, err := newStore(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	provisioner, err := newProvisioner(cfg.Gardener, logger)
	if err != nil {
		return err
	}
	cloud, err := newTenantClient(cfg.OpenStack, logger)
	if err != nil {
		return err
	}
	billing, err := newBillingClient(cfg.CloudKitty, logger)
	if err != nil {
		return err
	}

	runner, err := tasks.New(cfg.Tasks.Workers, cfg.Tasks.Timeout, logger, tasks.WithQueueSize(cfg.Tasks.QueueSize))
	if err != nil {
		return fmt.Errorf("start task runner: %w", err)
	}

	users := sqlite.NewUserRepository(db)
	projectSvc := project.NewService(
		sqlite.NewProjectRepository(db),
		sqlite.NewMembershipRepository(db),
		users,
		provisioner,
		cloud,
		runner,
		logger,
	)
	usageSvc := usage.NewService(usage.NewCache(store, logger), cloud, billing, cfg.Cache.TTL, quartz.NewReal(), logger)

	if cfg.Auth.BootstrapAdminToken != "" {
		if err := bootstrapAdmin(context.Background(), users, cfg.Auth.BootstrapAdminToken); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	mcpServer := mcp.NewServer(mcp.Config{
		Services:      mcp.Services{Projects: projectSvc, Usage: usageSvc},
		Resolver:      users,
		AuthEnabled:   cfg.Auth.Enabled,
		TransportMode: cfg.Transport.Mode,
		DefaultUser:   localUser,
		Logger:        logger,
	})

	if cfg.Transport.Mode == "stdio" {
		err = runStdioMode(logger, mcpServer)
	} else {
		auth := transport.AuthMiddleware(users)
		if !cfg.Auth.Enabled {
			logger.Warn("authentication disabled, every request acts as the local admin")
			auth = transport.StaticUserMiddleware(localUser)
		}
		router := transport.NewServer(projectSvc, usageSvc, transport.Options{
			Auth:    auth,
			MCP:     mcp.NewHTTPHandler(mcpServer),
			Metrics: promhttp.Handler(),
			Logger:  logger,
		})
		err = runHTTPMode(logger, router, cfg.Server.Host, cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closeErr := runner.Close(ctx); closeErr != nil {
		logger.Warn("background tasks cancelled", "error", closeErr)
	}
	return err
}

func runStdioMode(logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func runHTTPMode(logger *slog.Logger, handler http.Handler, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newStore(cfg config.CacheConfig, logger *slog.Logger) (usage.Store, func(), error) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := cache.NewRedisStore(client, cfg.Redis.KeyPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			// Cache failures read as misses.
			logger.Warn("redis unreachable, usage reports will not be cached until it is", "addr", cfg.Redis.Addr, "error", err)
		}
		return store, func() { _ = store.Close() }, nil
	}

	store, err := cache.NewMemoryStore(cfg.MaxBytes)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func apiConfig(cfg config.ServiceConfig) apiclient.Config {
	return apiclient.Config{
		BaseURL:   cfg.URL,
		Token:     cfg.Token,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
	}
}

func newProvisioner(cfg config.ServiceConfig, logger *slog.Logger) (project.Provisioner, error) {
	if cfg.URL == "" {
		logger.Warn("gardener url not set, projects are not provisioned")
		return unconfigured{name: "gardener"}, nil
	}
	return gardener.New(apiConfig(cfg), logger)
}

type tenantSource interface {
	project.TenantClient
	usage.Source
}

func newTenantClient(cfg config.OpenStackConfig, logger *slog.Logger) (tenantSource, error) {
	if cfg.URL == "" {
		logger.Warn("openstack url not set, tenant operations will fail")
		return unconfigured{name: "openstack"}, nil
	}
	return openstack.New(apiConfig(cfg.ServiceConfig), openstack.Options{
		MemberRoles: cfg.MemberRoles,
		GPUQuota:    cfg.GPUQuota,
	}, logger)
}

func newBillingClient(cfg config.ServiceConfig, logger *slog.Logger) (usage.BillingClient, error) {
	if cfg.URL == "" {
		logger.Warn("cloudkitty url not set, rating reports will fail")
		return unconfigured{name: "cloudkitty"}, nil
	}
	return cloudkitty.New(apiConfig(cfg))
}

// bootstrapAdmin makes sure token belongs to an admin holding the global
// project permission.
func bootstrapAdmin(ctx context.Context, users *sqlite.UserRepository, token string) error {
	if _, err := users.ResolveToken(ctx, token); err == nil {
		return nil
	}

	admin, err := users.GetUserByUsername(ctx, "admin")
	switch {
	case errors.Is(err, repository.ErrNotFound):
		admin = &project.User{
			ID:          "admin",
			Username:    "admin",
			IsAdmin:     true,
			Permissions: map[string]bool{project.PermManageAllOrganizationProjects: true},
		}
		if err := users.CreateUser(ctx, admin); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	return users.CreateToken(ctx, admin.ID, token, "bootstrap")
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

// truncateIfNeeded keeps the newest keepLogSizeBytes once the file grows
// past maxLogSizeBytes.
func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
