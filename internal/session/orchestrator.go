// Package session owns the lifecycle of development sessions: launching them
// through a runtime, capturing their output, tracking readiness, and stopping,
// restarting and evicting them.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/devserver-mcp/internal/backend"
	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/detect"
	"github.com/AltairaLabs/devserver-mcp/internal/logstore"
	"github.com/AltairaLabs/devserver-mcp/internal/ports"
	"github.com/AltairaLabs/devserver-mcp/internal/storage/memory"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
	"github.com/AltairaLabs/devserver-mcp/internal/watcher"
)

// Detector infers a launch spec for a project directory
type Detector interface {
	Detect(dir string) (*detect.LaunchSpec, error)
}

// PortAllocator hands out and reclaims ports
type PortAllocator interface {
	Allocate(category string, preferred int, owner string) (ports.Allocation, error)
	ReleaseOwned(port int, owner string) bool
	BandFor(port int) (ports.Band, bool)
}

// RuntimeResolver looks up a runtime by name
type RuntimeResolver interface {
	Get(name string) (backend.Runtime, error)
}

// Options holds orchestrator timing and behaviour settings
type Options struct {
	StopGrace      time.Duration
	ReadyGrace     time.Duration
	RestartSlack   time.Duration
	DrainTimeout   time.Duration
	ReadyPhrases   []string
	DefaultRuntime string
	OutputQueue    int

	WatchDebounce   time.Duration
	WatchExtensions map[string][]string
	WatchIgnore     []string
}

// OptionsFromConfig builds Options from the loaded config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StopGrace:       cfg.Session.StopGrace,
		ReadyGrace:      cfg.Session.ReadyGrace,
		RestartSlack:    config.DefaultRestartSlack,
		DrainTimeout:    config.DefaultDrainTimeout,
		ReadyPhrases:    cfg.Session.ReadyPhrases,
		DefaultRuntime:  cfg.Session.DefaultRuntime,
		OutputQueue:     cfg.Session.OutputQueue,
		WatchDebounce:   cfg.Watch.Debounce,
		WatchExtensions: cfg.Watch.Extensions,
		WatchIgnore:     cfg.Watch.Ignore,
	}
}

func (o *Options) applyDefaults() {
	if o.StopGrace <= 0 {
		o.StopGrace = config.DefaultStopGrace
	}
	if o.ReadyGrace <= 0 {
		o.ReadyGrace = config.DefaultReadyGrace
	}
	if o.RestartSlack <= 0 {
		o.RestartSlack = config.DefaultRestartSlack
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = config.DefaultDrainTimeout
	}
	if len(o.ReadyPhrases) == 0 {
		o.ReadyPhrases = config.DefaultReadyPhrases()
	}
	if o.DefaultRuntime == "" {
		o.DefaultRuntime = config.RuntimeProcess
	}
	if o.OutputQueue <= 0 {
		o.OutputQueue = config.DefaultOutputQueue
	}
	if o.WatchDebounce <= 0 {
		o.WatchDebounce = config.DefaultWatchDebounce
	}
}

// Orchestrator manages development sessions
type Orchestrator struct {
	opts     Options
	phrases  []string
	detector Detector
	ports    PortAllocator
	runtimes RuntimeResolver
	logs     *logstore.Store
	store    *memory.SessionStore
	logger   *slog.Logger
	now      func() time.Time

	// startMu serializes the idempotency check, port allocation and registration
	startMu sync.Mutex

	mu         sync.Mutex
	runs       map[string]*run
	requested  map[string]int
	watchers   map[string]*watcher.Watcher
	restarting map[string]bool
	// userStops marks sessions a caller stopped; a pending restart must not relaunch them
	userStops map[string]bool
}

// NewOrchestrator creates a session orchestrator
func NewOrchestrator(
	detector Detector,
	allocator PortAllocator,
	runtimes RuntimeResolver,
	logs *logstore.Store,
	store *memory.SessionStore,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()

	phrases := make([]string, 0, len(opts.ReadyPhrases))
	for _, p := range opts.ReadyPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}

	return &Orchestrator{
		opts:       opts,
		phrases:    phrases,
		detector:   detector,
		ports:      allocator,
		runtimes:   runtimes,
		logs:       logs,
		store:      store,
		logger:     logger,
		now:        time.Now,
		runs:       make(map[string]*run),
		requested:  make(map[string]int),
		watchers:   make(map[string]*watcher.Watcher),
		restarting: make(map[string]bool),
		userStops:  make(map[string]bool),
	}
}

// Start launches a development server, or returns the matching active session
func (o *Orchestrator) Start(ctx context.Context, req *types.StartRequest) (*types.StartResult, error) {
	if req == nil {
		return nil, types.NewError(types.KindInvalidParams, "start request is required")
	}
	if req.Port < 0 || req.Port > 65535 {
		return nil, types.NewError(types.KindInvalidParams, "port %d is out of range", req.Port)
	}
	if err := detect.ValidateProjectPath(req.Cwd); err != nil {
		return nil, err
	}
	cwd := filepath.Clean(req.Cwd)

	runtimeName := req.Runtime
	if runtimeName == "" {
		runtimeName = o.opts.DefaultRuntime
	}
	if _, err := o.runtimes.Get(runtimeName); err != nil {
		return nil, types.WrapError(types.KindInvalidParams, err, "unsupported runtime %q", runtimeName)
	}

	command := strings.TrimSpace(req.Command)
	var launch *detect.LaunchSpec
	if command == "" {
		spec, err := o.detector.Detect(cwd)
		if err != nil {
			return nil, err
		}
		launch = spec
		command = spec.Command
	}
	category := o.resolveCategory(req, launch)

	o.awaitStopping(ctx, cwd, command)

	o.startMu.Lock()
	defer o.startMu.Unlock()

	if existing := o.findActive(cwd, command, req.Port); existing != nil {
		o.logger.Info("session already running",
			"session_id", existing.ID,
			"cwd", cwd,
			"port", existing.Port)
		return &types.StartResult{
			Session:        o.snapshot(existing),
			AlreadyRunning: true,
			RequestedPort:  req.Port,
			Message:        fmt.Sprintf(config.MsgAlreadyRunning, existing.ID, existing.Port),
		}, nil
	}

	preferred := req.Port
	if preferred == 0 && launch != nil {
		preferred = launch.DefaultPort
	}

	id := uuid.NewString()
	alloc, err := o.ports.Allocate(category, preferred, id)
	if err != nil {
		return nil, err
	}

	now := o.now()
	info := &types.SessionInfo{
		ID:        id,
		Name:      req.Name,
		Command:   command,
		Cwd:       cwd,
		Env:       req.Env,
		Port:      alloc.Port,
		Category:  category,
		Runtime:   runtimeName,
		Watch:     req.Watch,
		State:     types.StateStarting,
		CreatedAt: now,
		StartedAt: now,
	}
	if launch != nil {
		info.Framework = launch.Framework
	}
	if err := o.store.Create(info); err != nil {
		o.ports.ReleaseOwned(alloc.Port, id)
		return nil, types.WrapError(types.KindInternalError, err, "failed to record session")
	}
	o.logs.Open(id)

	o.mu.Lock()
	o.requested[id] = req.Port
	o.mu.Unlock()

	snapshot, err := o.launch(ctx, info)
	if err != nil {
		return nil, err
	}

	if req.Watch {
		o.startWatch(snapshot)
	}

	substituted := req.Port != 0 && alloc.Port != req.Port
	msg := fmt.Sprintf(config.MsgSessionStarting, id, alloc.Port)
	if substituted {
		msg += "; " + fmt.Sprintf(config.MsgPortSubstituted, req.Port, alloc.Port)
	}

	o.logger.Info("session started",
		"session_id", id,
		"cwd", cwd,
		"command", command,
		"port", alloc.Port,
		"category", category,
		"runtime", runtimeName)

	return &types.StartResult{
		Session:         snapshot,
		PortSubstituted: substituted,
		RequestedPort:   req.Port,
		Message:         msg,
	}, nil
}

// resolveCategory picks the port band: explicit category, then the detected
// stack, then the band holding an explicit port, then custom.
func (o *Orchestrator) resolveCategory(req *types.StartRequest, launch *detect.LaunchSpec) string {
	if req.Category != "" {
		return req.Category
	}
	if launch != nil && launch.Category != "" {
		return launch.Category
	}
	if req.Port != 0 {
		if band, ok := o.ports.BandFor(req.Port); ok && band.Category != config.CategorySystem {
			return band.Category
		}
	}
	return config.CategoryCustom
}

// awaitStopping gives sessions with the same launch identity that are
// shutting down the stop grace to exit, so a new start can take their port.
func (o *Orchestrator) awaitStopping(ctx context.Context, cwd, command string) {
	stopping := o.store.Find(func(info *types.SessionInfo) bool {
		return info.State == types.StateStopping && info.Cwd == cwd && info.Command == command
	})
	if len(stopping) == 0 {
		return
	}

	timer := time.NewTimer(o.opts.StopGrace + o.opts.RestartSlack)
	defer timer.Stop()
	for _, info := range stopping {
		o.mu.Lock()
		r := o.runs[info.ID]
		o.mu.Unlock()
		if r == nil {
			continue
		}
		select {
		case <-r.finished:
		case <-timer.C:
			o.logger.Warn("previous session still stopping", "session_id", info.ID)
			return
		case <-ctx.Done():
			return
		}
	}
}

// findActive returns a starting or running session with the same launch
// identity. Caller holds startMu.
func (o *Orchestrator) findActive(cwd, command string, port int) *types.SessionInfo {
	matches := o.store.Find(func(info *types.SessionInfo) bool {
		live := info.State == types.StateStarting || info.State == types.StateRunning
		return live && info.Cwd == cwd && info.Command == command
	})
	if len(matches) == 0 {
		return nil
	}
	if port == 0 {
		return matches[0]
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range matches {
		if m.Port == port || o.requested[m.ID] == port {
			return m
		}
	}
	return nil
}

// Status returns a snapshot of one session
func (o *Orchestrator) Status(sessionID string) (*types.SessionInfo, error) {
	info, err := o.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return o.snapshot(info), nil
}

// List returns snapshots of all known sessions, most recently started first
func (o *Orchestrator) List() []*types.SessionInfo {
	list := o.store.List()
	for i, info := range list {
		list[i] = o.snapshot(info)
	}
	return list
}

func (o *Orchestrator) snapshot(info *types.SessionInfo) *types.SessionInfo {
	info.UptimeSeconds = info.Uptime(o.now()).Seconds()
	return info
}

func (o *Orchestrator) system(sessionID, format string, args ...interface{}) {
	if _, err := o.logs.Append(sessionID, types.StreamSystem, fmt.Sprintf(format, args...)); err != nil {
		o.logger.Debug("failed to append system log", "session_id", sessionID, "error", err)
	}
}
