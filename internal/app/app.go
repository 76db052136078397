package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shhac/wirebench/internal/config"
	"github.com/shhac/wirebench/internal/domain"
	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/shhac/wirebench/internal/execution"
	"github.com/shhac/wirebench/internal/grpc"
	"github.com/shhac/wirebench/internal/httpclient"
	"github.com/shhac/wirebench/internal/logging"
	"github.com/shhac/wirebench/internal/model"
	"github.com/shhac/wirebench/internal/storage"
	"github.com/shhac/wirebench/internal/telemetry"
	"github.com/shhac/wirebench/internal/wsclient"
)

// App is the main application coordinator, responsible for wiring
// together all components and managing their lifecycle.
type App struct {
	config    *Config
	logger    *slog.Logger
	logCloser io.Closer

	settings       config.Settings
	settingsHandle config.Handle

	storage   storage.Repository
	history   storage.HistoryStore
	historyDB *storage.SQLiteHistory

	telemetry  telemetry.Instrumenter
	grpc       *grpc.Transport
	controller *execution.Controller
	workspace  *model.Workspace
}

// Option overrides a component New would otherwise build.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	repo       storage.Repository
	history    storage.HistoryStore
	telemetry  telemetry.Instrumenter
	controller []execution.Option
}

// WithLogger uses logger instead of opening the platform log file.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRepository replaces the JSON workspace repository.
func WithRepository(repo storage.Repository) Option {
	return func(o *options) { o.repo = repo }
}

// WithHistoryStore replaces the SQLite history database.
func WithHistoryStore(h storage.HistoryStore) Option {
	return func(o *options) { o.history = h }
}

// WithTelemetry replaces the instrumenter built from settings and env.
func WithTelemetry(inst telemetry.Instrumenter) Option {
	return func(o *options) { o.telemetry = inst }
}

// WithControllerOptions appends to the options the controller is built with.
func WithControllerOptions(opts ...execution.Option) Option {
	return func(o *options) { o.controller = append(o.controller, opts...) }
}

// New creates a new App instance with the given configuration.
// This performs all dependency injection and wiring, and loads the
// configured workspace (or starts an empty one).
func New(cfg *Config, opts ...Option) (_ *App, err error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{config: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.logger == nil {
		a.logger, a.logCloser, err = logging.InitLogger("wirebench", cfg.Debug)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	storagePath := cfg.StoragePath
	if storagePath == "" {
		storagePath, err = storage.DefaultStoragePath()
		if err != nil {
			return nil, fmt.Errorf("failed to determine storage path: %w", err)
		}
	}

	a.logger.Info("initializing wirebench",
		slog.Bool("debug", cfg.Debug),
		slog.String("storage_path", storagePath),
		slog.String("workspace", cfg.Workspace),
	)

	a.settings, a.settingsHandle, err = config.Load(storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	jsonRepo := storage.NewJSONRepository(storagePath, a.logger)
	jsonRepo.SetMaxHistory(a.settings.History.MaxEntries)
	a.storage = o.repo
	if a.storage == nil {
		a.storage = jsonRepo
	}

	a.history = o.history
	if a.history == nil {
		db, dbErr := storage.OpenSQLiteHistory(storage.DefaultHistoryPath(storagePath),
			a.settings.History.MaxEntries, a.logger)
		if dbErr != nil {
			a.logger.Warn("history database unavailable, using JSON history",
				slog.Any("error", dbErr))
			a.history = jsonRepo
		} else {
			a.historyDB = db
			a.history = db
		}
	}

	a.telemetry = o.telemetry
	if a.telemetry == nil {
		a.telemetry, err = telemetry.New(a.telemetryConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	httpClient, err := httpclient.New(httpclient.Options{
		Timeout:            a.settings.HTTP.Timeout.Std(),
		FollowRedirects:    a.settings.HTTP.FollowRedirects,
		InsecureSkipVerify: a.settings.HTTP.Insecure,
		ProxyURL:           a.settings.HTTP.Proxy,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	a.grpc = grpc.NewTransport(grpc.PoolOptions{
		Plaintext:   a.settings.GRPC.Plaintext,
		SkipVerify:  a.settings.GRPC.SkipVerify,
		DialTimeout: a.settings.GRPC.DialTimeout.Std(),
		KeepAlive:   a.settings.GRPC.KeepAlive.Std(),
	}, a.logger)
	a.grpc.Pool().SetStateCallback(func(target string, state grpc.ConnectionState, message string) {
		a.logger.Debug("grpc connection state",
			slog.String("target", target),
			slog.String("state", state.String()),
			slog.String("message", message),
		)
	})

	ctrlOpts := []execution.Option{
		execution.WithHTTPTransport(httpClient),
		execution.WithWebSocketTransport(wsclient.New(wsclient.Options{
			HandshakeTimeout: a.settings.HTTP.Timeout.Std(),
		}, a.logger)),
		execution.WithGRPCTransport(a.grpc),
		execution.WithLogger(a.logger),
		execution.WithTelemetry(a.telemetry),
		execution.WithPreviewLimit(a.settings.Response.PreviewLimit),
		execution.WithOutcomeHook(a.recordOutcome),
	}
	a.controller = execution.New(append(ctrlOpts, o.controller...)...)

	a.workspace, err = a.loadWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	a.workspace.SetTabReleaser(a.controller.Release)

	a.logger.Info("application initialized successfully")
	return a, nil
}

// telemetryConfig merges the settings file with the OTEL_* environment.
// Environment values win.
func (a *App) telemetryConfig() telemetry.Config {
	cfg := telemetry.ConfigFromEnv()
	if cfg.Endpoint == "" {
		cfg.Endpoint = a.settings.Telemetry.Endpoint
		cfg.Insecure = cfg.Insecure || a.settings.Telemetry.Insecure
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = a.settings.Telemetry.Service
	}
	return cfg
}

func (a *App) loadWorkspace(name string) (*model.Workspace, error) {
	if name == "" {
		name = DefaultWorkspaceName
	}
	tree, err := a.storage.LoadWorkspace(name)
	if errors.Is(err, storage.ErrNotFound) {
		a.logger.Info("starting new workspace", slog.String("workspace", name))
		return model.NewWorkspace(model.WithName(name)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace %q: %w", name, err)
	}
	ws, err := model.Restore(*tree, model.WithName(name))
	if err != nil {
		return nil, fmt.Errorf("failed to restore workspace %q: %w", name, err)
	}
	return ws, nil
}

// recordOutcome appends a resolved attempt to the history store.
func (a *App) recordOutcome(o execution.Outcome) {
	entry := domain.HistoryEntry{
		ID:         uuid.NewString(),
		Timestamp:  o.StartedAt,
		TabID:      o.TabID,
		Protocol:   o.Protocol.Code(),
		Method:     o.Method,
		Target:     o.Target,
		Request:    o.Request,
		Response:   o.Response,
		StatusCode: o.StatusCode,
		Duration:   o.Elapsed,
		Size:       o.Size,
		Status:     historyStatus(o.Status),
	}
	if o.Err != nil {
		entry.Error = o.Err.Error()
	}
	if err := a.history.AddHistoryEntry(entry); err != nil {
		a.logger.Error("failed to record history",
			slog.String("tab", o.TabID),
			slog.Any("error", err),
		)
	}
}

func historyStatus(s model.LifecycleState) string {
	switch s {
	case model.Completed:
		return "completed"
	case model.Failed:
		return "failed"
	case model.Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Send runs tab and blocks until the attempt resolves or ctx ends, in
// which case the attempt is cancelled. A WebSocket tab is connected, its
// pending message sent, and the session kept open until ctx ends or the
// peer closes it.
func (a *App) Send(ctx context.Context, tab *model.Tab) error {
	if tab == nil {
		return apperrors.InvalidInput("app.send", "no tab")
	}
	switch tab.Kind() {
	case model.KindHTTP:
		return a.await(ctx, tab, a.controller.Start)
	case model.KindGRPC:
		return a.await(ctx, tab, a.controller.Invoke)
	case model.KindWebSocket:
		return a.converse(ctx, tab)
	}
	return apperrors.InvalidInput("app.send", "unsupported tab kind %s", tab.Kind())
}

func (a *App) await(ctx context.Context, tab *model.Tab, start func(*model.Tab) (*execution.Attempt, error)) error {
	attempt, err := start(tab)
	if err != nil {
		return err
	}
	select {
	case <-attempt.Done():
	case <-ctx.Done():
		if err := a.controller.Cancel(tab); err != nil {
			return err
		}
		<-attempt.Done()
	}
	return nil
}

func (a *App) converse(ctx context.Context, tab *model.Tab) error {
	session := tab.WebSocket()
	changed := make(chan struct{}, 1)
	unsubscribe := session.Subscribe(func(c model.Change) {
		if c.Field != model.FieldConnection {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if err := a.controller.Connect(tab); err != nil {
		return err
	}
	defer func() {
		if err := a.controller.Disconnect(tab); err != nil {
			a.logger.Warn("disconnect failed", slog.String("tab", tab.ID()), slog.Any("error", err))
		}
	}()

	sent := false
	for {
		switch session.State() {
		case model.Connected:
			if !sent && session.PendingMessage() != "" {
				if err := a.controller.SendPending(tab); err != nil {
					return err
				}
			}
			sent = true
		case model.Disconnected:
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil
		}
	}
}

// Save persists the workspace under its name.
func (a *App) Save() error {
	tree := a.workspace.Snapshot()
	if err := a.storage.SaveWorkspace(tree); err != nil {
		return fmt.Errorf("failed to save workspace %q: %w", tree.Name, err)
	}
	return nil
}

// SaveSettings writes the current settings back to their file.
func (a *App) SaveSettings() error {
	return config.Save(a.settings, a.settingsHandle)
}

// Close stops running attempts and releases every resource. It is safe
// to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.controller != nil {
		a.controller.Close()
	}
	if a.grpc != nil {
		a.grpc.Close()
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.telemetry.Shutdown(ctx))
		cancel()
	}
	if a.historyDB != nil {
		errs = append(errs, a.historyDB.Close())
	}
	if a.logger != nil {
		a.logger.Info("application shutdown complete")
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}

// Workspace returns the loaded workspace.
func (a *App) Workspace() *model.Workspace {
	return a.workspace
}

// Controller returns the execution controller.
func (a *App) Controller() *execution.Controller {
	return a.controller
}

// GRPC returns the gRPC transport, for descriptor inspection.
func (a *App) GRPC() *grpc.Transport {
	return a.grpc
}

// History returns the history store.
func (a *App) History() storage.HistoryStore {
	return a.history
}

// Storage returns the workspace repository.
func (a *App) Storage() storage.Repository {
	return a.storage
}

// Settings returns the loaded settings.
func (a *App) Settings() config.Settings {
	return a.settings
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
