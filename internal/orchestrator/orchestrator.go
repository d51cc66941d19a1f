// Package orchestrator drives one check, update and launch cycle and reports
// it as an ordered event stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yagualauncher/yagua/internal/install"
	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/launch"
	"github.com/yagualauncher/yagua/internal/manifest"
	"github.com/yagualauncher/yagua/internal/profile"
	"github.com/yagualauncher/yagua/internal/reconcile"
	"github.com/yagualauncher/yagua/internal/update"
)

type Config struct {
	ManifestURL string
	Reconciler  reconcile.Reconciler
	// Launch is the template for every launch; InstallDir, ExtraArgs and Vars are filled per run.
	Launch launch.BuildOptions
	// VerifyInstalled re-hashes tracked files before planning.
	VerifyInstalled bool
	// AllowOffline launches the installed version when the manifest cannot be fetched.
	AllowOffline bool
	// EventLimit bounds the event history kept between runs. Zero means
	// DefaultEventLogLimit.
	EventLimit int
}

type RunOptions struct {
	Launch  bool
	Wait    bool
	Profile profile.Profile
	Session profile.Session
	// ManifestURL overrides Config.ManifestURL for this run.
	ManifestURL string
}

type Result struct {
	State    State
	Version  string
	Plan     reconcile.UpdatePlan
	Offline  bool
	Process  *launch.Process
	ExitCode *int
}

type Status struct {
	State            State     `json:"state"`
	Running          bool      `json:"running"`
	InstalledVersion string    `json:"installedVersion,omitempty"`
	LastError        string    `json:"lastError,omitempty"`
	LastErrorKind    ErrorKind `json:"lastErrorKind,omitempty"`
	Events           int       `json:"events"`
}

type Orchestrator struct {
	inst     *install.Installation
	fetcher  manifest.Fetcher
	executor *update.Executor
	launcher *launch.Controller
	verifier *integrity.Verifier
	cfg      Config
	log      *EventLog

	mu        sync.Mutex
	state     State
	running   bool
	lastErr   error
	installed string

	eventsOnce sync.Once
	events     <-chan Event
}

func New(inst *install.Installation, fetcher manifest.Fetcher, executor *update.Executor, launcher *launch.Controller, verifier *integrity.Verifier, cfg Config) *Orchestrator {
	if verifier == nil {
		verifier = integrity.NewVerifier(0)
	}
	o := &Orchestrator{
		inst:     inst,
		fetcher:  fetcher,
		executor: executor,
		launcher: launcher,
		verifier: verifier,
		cfg:      cfg,
		log:      NewEventLog(),
		state:    Idle,
	}
	executor.OnProgress = func(path string, done, total int64) {
		o.log.Append(Event{Type: EventFileProgress, Path: path, BytesDone: done, BytesTotal: total})
	}
	return o
}

// Events is the single-consumer ordered event channel. It closes after Close.
func (o *Orchestrator) Events() <-chan Event {
	o.eventsOnce.Do(func() {
		o.events = o.log.Subscribe(context.Background(), 0)
	})
	return o.events
}

// Subscribe gives an additional consumer every event from the first one on.
func (o *Orchestrator) Subscribe(ctx context.Context) <-chan Event {
	return o.log.Subscribe(ctx, 0)
}

// Log exposes the underlying event log.
func (o *Orchestrator) Log() *EventLog {
	return o.log
}

// Close ends all event streams.
func (o *Orchestrator) Close() {
	o.log.Close()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{State: o.state, Running: o.running, InstalledVersion: o.installed, Events: o.log.Len()}
	if o.lastErr != nil {
		s.LastError = o.lastErr.Error()
		s.LastErrorKind = Kind(o.lastErr)
	}
	return s
}

func (o *Orchestrator) transition(to State) error {
	o.mu.Lock()
	from := o.state
	if err := checkTransition(from, to); err != nil {
		o.mu.Unlock()
		return err
	}
	o.state = to
	o.mu.Unlock()

	slog.Debug("orchestrator state", "from", from, "to", to)
	o.log.Append(Event{Type: EventStateChanged, From: from, To: to})
	return nil
}

func (o *Orchestrator) fail(err error) error {
	kind := Kind(err)
	slog.Error("orchestrator failed", "kind", kind, "error", err)
	o.log.Append(Event{Type: EventError, Kind: kind, Message: err.Error()})

	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
	if terr := o.transition(Failed); terr != nil {
		slog.Warn("orchestrator fail transition", "error", terr)
	}
	return err
}

// Run performs one cycle. Only one Run executes at a time; a concurrent call
// returns ErrBusy.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if err := o.claim(); err != nil {
		return nil, err
	}
	return o.runClaimed(ctx, opts)
}

// Start claims the orchestrator and performs the cycle in the background. It
// returns ErrBusy without starting anything when a cycle is in progress.
// after is the sequence of the last event before the cycle, and done yields
// the cycle's error once it ends.
func (o *Orchestrator) Start(ctx context.Context, opts RunOptions) (after uint64, done <-chan error, err error) {
	if err := o.claim(); err != nil {
		return 0, nil, err
	}
	after = o.log.LastSeq()

	ch := make(chan error, 1)
	go func() {
		_, err := o.runClaimed(ctx, opts)
		ch <- err
		close(ch)
	}()
	return after, ch, nil
}

func (o *Orchestrator) claim() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrBusy
	}
	o.running = true
	o.lastErr = nil
	if o.state.Terminal() {
		o.state = Idle
	}

	limit := o.cfg.EventLimit
	if limit <= 0 {
		limit = DefaultEventLogLimit
	}
	o.log.Compact(limit)
	return nil
}

func (o *Orchestrator) runClaimed(ctx context.Context, opts RunOptions) (*Result, error) {
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	res, err := o.run(ctx, opts)
	if err != nil {
		return res, o.fail(err)
	}
	res.State = o.State()
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, opts RunOptions) (*Result, error) {
	res := &Result{}
	url := opts.ManifestURL
	if url == "" {
		url = opts.Profile.Manifest
	}
	if url == "" {
		url = o.cfg.ManifestURL
	}

	if err := o.transition(CheckingManifest); err != nil {
		return res, err
	}

	local, err := o.inst.LoadState()
	if errors.Is(err, manifest.ErrCorruptState) {
		slog.Warn("local state unreadable, auditing from scratch", "error", err)
		local = manifest.NewLocalState()
	} else if err != nil {
		return res, err
	}
	o.setInstalled(local.ManifestVersion)

	m, err := manifest.Fetch(ctx, o.fetcher, url)
	if err != nil {
		if o.cfg.AllowOffline && Kind(err) == KindNetwork && len(local.Files) > 0 {
			slog.Warn("manifest unavailable, continuing offline", "url", url, "installed", local.ManifestVersion, "error", err)
			o.log.Append(Event{Type: EventError, Kind: KindNetwork, Message: err.Error()})
			res.Offline = true
			res.Version = local.ManifestVersion
			return o.finish(ctx, res, opts)
		}
		return res, err
	}
	res.Version = m.Version
	o.log.Append(Event{Type: EventManifestFetched, Version: m.Version, Files: len(m.Files)})
	if err := manifest.SaveManifestCache(m, o.inst.ManifestCache); err != nil {
		slog.Warn("manifest cache", "error", err)
	}

	if err := o.transition(Planning); err != nil {
		return res, err
	}
	input := local
	if o.cfg.VerifyInstalled {
		input = o.audit(local, m)
	}
	plan := o.cfg.Reconciler.Plan(m, input)
	res.Plan = plan
	counts := plan.Counts()
	o.log.Append(Event{Type: EventPlanComputed, Version: m.Version, Counts: &counts})

	if plan.Empty() {
		if err := o.transition(UpToDate); err != nil {
			return res, err
		}
		if local.ManifestVersion != m.Version {
			// record the new version even though no file changed
			if err := o.executor.Execute(ctx, plan, m, ""); err != nil {
				return res, err
			}
			o.setInstalled(m.Version)
		}
		return o.finish(ctx, res, opts)
	}

	if err := o.transition(UpdateNeeded); err != nil {
		return res, err
	}
	if err := o.transition(Updating); err != nil {
		return res, err
	}
	if err := o.executor.Execute(ctx, plan, m, o.inst.StagingDir); err != nil {
		return res, err
	}
	o.setInstalled(m.Version)
	o.log.Append(Event{Type: EventUpdateCommitted, Version: m.Version, Counts: &counts})

	if err := o.transition(Verified); err != nil {
		return res, err
	}
	return o.finish(ctx, res, opts)
}

// finish launches if asked and ends in Done.
func (o *Orchestrator) finish(ctx context.Context, res *Result, opts RunOptions) (*Result, error) {
	if !opts.Launch {
		return res, o.transition(Done)
	}
	if err := o.transition(ReadyToLaunch); err != nil {
		return res, err
	}
	if err := o.transition(Launching); err != nil {
		return res, err
	}

	spec, err := o.buildSpec(opts, res.Version)
	if err != nil {
		return res, err
	}
	p, err := o.launcher.Launch(ctx, spec)
	if err != nil {
		return res, err
	}
	res.Process = p
	o.log.Append(Event{Type: EventLaunchStarted, PID: p.PID()})

	if opts.Wait {
		code, err := o.launcher.WaitForExit(ctx, p)
		if err != nil {
			return res, err
		}
		res.ExitCode = &code
		o.log.Append(Event{Type: EventLaunchExited, PID: p.PID(), ExitCode: &code})
	}
	return res, o.transition(Done)
}

func (o *Orchestrator) buildSpec(opts RunOptions, versionName string) (launch.Spec, error) {
	b := o.cfg.Launch
	b.InstallDir = o.inst.Root
	b.ExtraArgs = append(append([]string{}, b.ExtraArgs...), opts.Profile.Args...)

	env := make(map[string]string, len(b.Env)+len(opts.Profile.Env))
	for k, v := range b.Env {
		env[k] = v
	}
	for k, v := range opts.Profile.Env {
		env[k] = v
	}
	b.Env = env

	b.Vars = launch.Vars{
		PlayerName:  opts.Session.Username,
		PlayerUUID:  opts.Session.UUID,
		GameDir:     o.inst.Root,
		VersionName: versionName,
		ProfileName: opts.Profile.Name,
		MemoryMB:    opts.Profile.MemoryMB,
	}
	return launch.BuildSpec(b)
}

// audit drops tracked files that are missing or corrupt on disk so that the
// plan downloads them again. Records the manifest no longer lists are kept so
// the plan still deletes them.
func (o *Orchestrator) audit(local *manifest.LocalInstallState, m *manifest.RemoteManifest) *manifest.LocalInstallState {
	checked := local.Clone()
	for _, path := range local.Paths() {
		if _, ok := m.Lookup(path); !ok {
			continue
		}
		f := local.Files[path]
		ok, err := o.verifier.Verify(o.inst.Path(path), f.Checksum, f.Algo)
		if err != nil || !ok {
			slog.Warn("audit mismatch", "path", path, "error", err)
			delete(checked.Files, path)
		}
	}
	return checked
}

func (o *Orchestrator) setInstalled(v string) {
	o.mu.Lock()
	o.installed = v
	o.mu.Unlock()
}

// String is used in logs.
func (r *Result) String() string {
	c := r.Plan.Counts()
	return fmt.Sprintf("state=%s version=%s add=%d replace=%d patch=%d delete=%d offline=%t",
		r.State, r.Version, c.Add, c.Replace, c.Patch, c.Delete, r.Offline)
}
