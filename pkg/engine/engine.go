// Package engine orchestrates a full SBOM scan: component extraction,
// policy filtering, fingerprinting, dependency resolution, incremental
// merge against a prior document, and report synthesis.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/detector"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/extract"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/fingerprint"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/licensing"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/merge"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/policy"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/report"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/resolve"
	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
	"github.com/openeuler-mirror/xlin-sbom/pkg/storage"
	"github.com/openeuler-mirror/xlin-sbom/pkg/telemetry"
	"github.com/openeuler-mirror/xlin-sbom/pkg/version"
)

// namespaceBase prefixes every document namespace URI this tool mints.
const namespaceBase = "https://openeuler.org/spdx/"

var (
	// ErrPreconditions means the scan could not start: contradictory input
	// selection, unreadable root or unusable output destination. Nothing
	// was written.
	ErrPreconditions = errors.New("scan preconditions not met")

	// ErrPartialScan indicates the scan completed and a valid SBOM was
	// written, but some units were skipped. Only returned in strict mode.
	ErrPartialScan = errors.New("scan completed with partial results")
)

// Config holds engine settings.
type Config struct {
	// Exactly one of ISOPath and PackagePath selects the scan subject.
	ISOPath     string
	PackagePath string

	// MountRoot is the readable tree the ISO is mounted at. Mounting is
	// the caller's job; the engine only reads.
	MountRoot string

	// OutputDir receives the generated report pair. Either a local
	// directory or an s3://bucket/prefix URL.
	OutputDir string

	// PriorSBOM optionally points at a condensed document from an earlier
	// run (local path or s3:// URL), enabling the incremental merge.
	PriorSBOM string

	// MaxWorkers bounds hashing and detector concurrency. Zero picks the
	// host parallelism.
	MaxWorkers int

	// RulesFile optionally names a YAML file of component exclusion and
	// warning rules.
	RulesFile string

	// LicenseAliases optionally names a YAML map of extra license alias
	// spellings layered over the built-in table.
	LicenseAliases string

	DisableProgress bool

	// StrictMode forces ErrPartialScan when any unit was skipped.
	StrictMode bool

	JsonLogs bool
	Verbose  bool

	// Telemetry config.
	OtelEndpoint  string // "http://localhost:4318" or via env
	SkipTelemetry bool   // set when embedding in an app that already has OTEL

	// Dependencies.
	Logger *slog.Logger
	Sink   Sink
}

// Engine is the runtime core.
type Engine struct {
	Registry *detector.Registry
	Logger   *slog.Logger
	Tracer   trace.Tracer

	config     Config
	sink       Sink
	normalizer *licensing.Normalizer
	rules      *policy.CELEngine

	shutdownTracing func(context.Context) error
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New initializes the Engine.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		Registry: detector.NewRegistry(),
		Tracer:   otel.Tracer("xlin-sbom/engine"),
		sink:     NopSink{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.Logger == nil {
		e.Logger = newLogger(e.config)
	}
	slog.SetDefault(e.Logger)

	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OtelEndpoint)
		if err != nil {
			e.Logger.Warn("telemetry setup failed", "error", err)
		} else {
			e.shutdownTracing = shutdown
		}
	}

	overrides := map[string]string{}
	if e.config.LicenseAliases != "" {
		loaded, err := licensing.LoadOverrides(e.config.LicenseAliases)
		if err != nil {
			return nil, fmt.Errorf("license aliases: %w", err)
		}
		overrides = loaded
	}
	e.normalizer = licensing.NewNormalizer(overrides)

	if e.config.RulesFile != "" {
		rules, err := policy.Load(e.config.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("policy rules: %w", err)
		}
		cel, err := policy.NewCELEngine()
		if err != nil {
			return nil, err
		}
		if err := cel.Compile(rules); err != nil {
			return nil, err
		}
		e.rules = cel
	}

	return e, nil
}

// WithConfig sets raw config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
		if cfg.Logger != nil {
			e.Logger = cfg.Logger
		}
		if cfg.Sink != nil {
			e.sink = cfg.Sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.Logger = l
	}
}

// WithConcurrency sets the worker bound.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.config.MaxWorkers = n
		}
	}
}

// WithSink routes scan events to the given sink.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithRegistry replaces the detector set, for embedders that bring their
// own formats.
func WithRegistry(r *detector.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.Registry = r
		}
	}
}

// Close flushes telemetry. Call once after the last Run.
func (e *Engine) Close(ctx context.Context) error {
	if e.shutdownTracing == nil {
		return nil
	}
	return e.shutdownTracing(ctx)
}

// Run executes one scan and writes the report pair. The returned document
// is the reconciled result. On any error before the write barrier nothing
// is emitted; the output destination either receives the complete pair or
// stays untouched.
func (e *Engine) Run(ctx context.Context) (doc *sbom.Document, err error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Run")
	defer span.End()
	defer e.recoverPanic(span, &err)

	if !e.config.DisableProgress && !e.config.JsonLogs {
		fmt.Printf("%s %s [%s]\n", version.AppName, version.Current, version.License)
	}

	target, err := e.resolveTarget()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.Logger.Info("starting scan", "subject", target.name, "root", target.root, "workers", e.config.MaxWorkers)

	// A malformed prior document must fail the run before any scanning
	// happens: the user asked for a merge and silently skipping it would
	// misrepresent the output.
	var prior *sbom.Document
	if e.config.PriorSBOM != "" {
		data, ferr := storage.Fetch(ctx, e.config.PriorSBOM)
		if ferr != nil {
			return nil, fmt.Errorf("read prior SBOM %s: %w", e.config.PriorSBOM, ferr)
		}
		prior, err = merge.LoadPrior(data)
		if err != nil {
			return nil, fmt.Errorf("prior SBOM %s: %w", e.config.PriorSBOM, err)
		}
	}

	store, err := storage.ForURL(ctx, e.config.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: output %s: %v", ErrPreconditions, e.config.OutputDir, err)
	}

	rep := &scanReporter{engine: e}

	e.phase("extract")
	exres, err := extract.Run(ctx, extract.Options{
		Root:        target.root,
		ImageName:   target.name,
		ImageSource: target.imageSource,
		Registry:    e.Registry,
		Reporter:    rep,
		Normalizer:  e.normalizer,
		MaxWorkers:  e.config.MaxWorkers,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	comps, contains := exres.Components, exres.Contains
	if e.rules != nil {
		e.phase("policy")
		comps, contains = e.applyPolicy(ctx, comps, contains)
	}

	e.phase("fingerprint")
	pool := fingerprint.Pool{Workers: e.config.MaxWorkers, Progress: rep.Progress}
	if err := pool.Run(ctx, comps); err != nil {
		return nil, err
	}
	for i := range comps {
		if comps[i].FingerprintErr != "" {
			rep.PartialFailure(comps[i].SourcePath, errors.New(comps[i].FingerprintErr))
		}
	}

	e.phase("resolve")
	rres := resolve.Build(resolve.Input{Components: comps, Contains: contains, RootID: exres.RootID})
	for _, u := range rres.Unresolved {
		e.sink.Publish(Event{Kind: EventUnresolved, Path: u.Source, Detail: u.Capability})
		e.Logger.Warn("dependency hint matched no component", "component", u.Source, "capability", u.Capability)
	}
	for _, alt := range rres.Alternatives {
		e.sink.Publish(Event{Kind: EventAlternative, Path: alt.Source, Detail: alt.Capability})
		e.Logger.Debug("dependency had multiple providers",
			"component", alt.Source, "capability", alt.Capability, "winner", alt.Winner, "alternatives", alt.Losers)
	}

	fresh := e.assemble(target, exres.OS, comps, rres)

	e.phase("merge")
	merged, delta := merge.Merge(prior, fresh)
	e.sink.Publish(Event{Kind: EventDelta, Delta: &delta})
	if prior != nil {
		e.Logger.Info("incremental merge reconciled",
			"unchanged", len(delta.Unchanged), "updated", len(delta.Updated),
			"added", len(delta.Added), "removed", len(delta.Removed))
	}

	// Cancellation must never leave a half scan on disk. Past this barrier
	// the write either completes as a pair or rolls back.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.phase("write")
	if err := report.WriteAll(ctx, store, merged); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.Logger.Info("reports written",
		"destination", e.config.OutputDir,
		"condensed", report.CondensedName(merged.Name),
		"spdx", report.SPDXName(merged.Name),
		"components", len(merged.Components))

	if failures := rep.failureCount(); failures > 0 {
		span.SetAttributes(
			attribute.Bool("scan.partial", true),
			attribute.Int("scan.failed_paths", failures),
		)
		if e.config.StrictMode {
			e.Logger.Error("strict mode: failing due to partial scan results", "failures", failures)
			return merged, ErrPartialScan
		}
		e.Logger.Warn("scan finished with partial results", "failures", failures)
	}

	return merged, nil
}

// scanTarget is the resolved subject of one run.
type scanTarget struct {
	root        string // readable tree or package file
	name        string // document name
	imageSource string // image file backing the root pseudo-component
	imageMode   bool
}

// resolveTarget validates the precondition surface: input selection,
// readable root, usable output destination.
func (e *Engine) resolveTarget() (scanTarget, error) {
	cfg := e.config
	switch {
	case cfg.ISOPath != "" && cfg.PackagePath != "":
		return scanTarget{}, fmt.Errorf("%w: an ISO image and a package are mutually exclusive inputs", ErrPreconditions)
	case cfg.ISOPath == "" && cfg.PackagePath == "":
		return scanTarget{}, fmt.Errorf("%w: either an ISO image or a package path is required", ErrPreconditions)
	case cfg.OutputDir == "":
		return scanTarget{}, fmt.Errorf("%w: an output destination is required", ErrPreconditions)
	}

	if !strings.HasPrefix(cfg.OutputDir, "s3://") {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return scanTarget{}, fmt.Errorf("%w: output directory %s: %v", ErrPreconditions, cfg.OutputDir, err)
		}
	}

	if cfg.PackagePath != "" {
		info, err := os.Stat(cfg.PackagePath)
		if err != nil {
			return scanTarget{}, fmt.Errorf("%w: package %s: %v", ErrPreconditions, cfg.PackagePath, err)
		}
		if info.IsDir() {
			return scanTarget{}, fmt.Errorf("%w: package %s is a directory", ErrPreconditions, cfg.PackagePath)
		}
		return scanTarget{root: cfg.PackagePath, name: documentName(cfg.PackagePath)}, nil
	}

	if cfg.MountRoot == "" {
		return scanTarget{}, fmt.Errorf("%w: image scans need a mounted root; mounting belongs to the caller", ErrPreconditions)
	}
	if _, err := os.ReadDir(cfg.MountRoot); err != nil {
		return scanTarget{}, fmt.Errorf("%w: mount root %s: %v", ErrPreconditions, cfg.MountRoot, err)
	}
	return scanTarget{
		root:        cfg.MountRoot,
		name:        documentName(cfg.ISOPath),
		imageSource: cfg.ISOPath,
		imageMode:   true,
	}, nil
}

// assemble builds the fresh document shell around the resolved components.
func (e *Engine) assemble(target scanTarget, osInfo sbom.OSInfo, comps []sbom.Component, rres *resolve.Result) *sbom.Document {
	d := sbom.NewDocument(target.name, version.AppName, version.Current)
	d.Created = time.Now().UTC().Format(time.RFC3339)

	// The namespace UUID is derived from the document name, so rescanning
	// the same subject keeps the same identity across runs.
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespaceBase+target.name))
	d.DocumentID = "urn:uuid:" + u.String()
	d.Namespace = namespaceBase + target.name + "-" + u.String()

	d.OS = osInfo
	d.Components = comps
	d.Relationships = rres.Relationships
	d.Unresolved = rres.Unresolved
	d.Licenses = licenseTable(comps)
	return d
}

// applyPolicy evaluates the compiled rules against every package component.
// Excluded components vanish together with their containment edges; files
// whose every owner was excluded vanish too, so the later resolution never
// sees them.
func (e *Engine) applyPolicy(ctx context.Context, comps []sbom.Component, contains []sbom.Relationship) ([]sbom.Component, []sbom.Relationship) {
	_, span := e.Tracer.Start(ctx, "Engine.Policy")
	defer span.End()

	excluded := make(map[string]struct{})
	for i := range comps {
		c := &comps[i]
		if c.Origin != sbom.OriginPackage {
			continue
		}
		for _, m := range e.rules.Evaluate(*c) {
			e.sink.Publish(Event{Kind: EventPolicy, Path: c.ID, Detail: m.Rule.ID + ":" + string(m.Rule.Action)})
			switch m.Rule.Action {
			case policy.ActionExclude:
				excluded[c.ID] = struct{}{}
				e.Logger.Info("component excluded by policy", "component", c.ID, "rule", m.Rule.ID)
			case policy.ActionWarn:
				e.Logger.Warn("component flagged by policy", "component", c.ID, "rule", m.Rule.ID)
			}
		}
	}
	span.SetAttributes(attribute.Int("policy.excluded", len(excluded)))
	if len(excluded) == 0 {
		return comps, contains
	}

	keptEdges := make([]sbom.Relationship, 0, len(contains))
	owners := make(map[string]int)
	for _, edge := range contains {
		if _, gone := excluded[edge.Source]; gone {
			continue
		}
		keptEdges = append(keptEdges, edge)
		owners[edge.Target]++
	}

	kept := make([]sbom.Component, 0, len(comps))
	for _, c := range comps {
		if _, gone := excluded[c.ID]; gone {
			continue
		}
		if c.Origin == sbom.OriginFile && owners[c.ID] == 0 {
			continue
		}
		kept = append(kept, c)
	}
	return kept, keptEdges
}

func (e *Engine) phase(name string) {
	e.sink.Publish(Event{Kind: EventPhase, Detail: name})
	e.Logger.Debug("phase", "name", name)
}

// recoverPanic converts a crash inside the pipeline into an error return,
// recorded on the trace, so embedders never die on a malformed input the
// parsers missed.
func (e *Engine) recoverPanic(span trace.Span, err *error) {
	if r := recover(); r != nil {
		stack := debug.Stack()
		span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "scan panicked")
		span.SetAttributes(attribute.String("crash.reason", fmt.Sprintf("%v", r)))
		e.Logger.Error("scan panicked", "error", r, "stack", string(stack))
		*err = fmt.Errorf("scan panicked: %v", r)
	}
}

// scanReporter bridges detector and hasher callbacks onto the event sink
// and the failure tally. Safe for concurrent use.
type scanReporter struct {
	engine *Engine

	mu       sync.Mutex
	failures int
}

func (r *scanReporter) PartialFailure(scope string, err error) {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()

	r.engine.sink.Publish(Event{Kind: EventPartialFailure, Path: scope, Err: err})
	r.engine.Logger.Warn("partial extraction failure", "scope", scope, "error", err)
}

func (r *scanReporter) Progress(done, total int, current string) {
	if r.engine.config.DisableProgress {
		return
	}
	r.engine.sink.Publish(Event{Kind: EventProgress, Done: done, Total: total, Path: current})
}

func (r *scanReporter) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// licenseTable collects the distinct declared licenses across the component
// set into extracted-license entries.
func licenseTable(comps []sbom.Component) []sbom.LicenseInfo {
	seen := make(map[string]struct{})
	var out []sbom.LicenseInfo
	for _, c := range comps {
		if c.License == "" {
			continue
		}
		if _, dup := seen[c.License]; dup {
			continue
		}
		seen[c.License] = struct{}{}
		out = append(out, sbom.LicenseInfo{ID: sbom.LicenseRefID(c.License), Name: c.License})
	}
	return out
}

// documentName derives the SBOM name from the scan subject's filename.
func documentName(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, suf := range []string{".tar.gz", ".tgz", ".tar", ".zip", ".rpm", ".iso"} {
		if strings.HasSuffix(lower, suf) {
			return base[:len(base)-len(suf)]
		}
	}
	if ext := filepath.Ext(base); ext != "" {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

func newLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSensitiveData,
	}
	if cfg.JsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// redactSensitiveData scrubs credential-shaped keys from logs. The scan
// itself never logs secrets, but S3-backed runs carry ambient credentials
// and a careless embedder could feed them through attributes.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"password": true, "access_key": true, "token": true,
		"secret": true, "credential": true, "session_token": true,
	}
	if sensitiveKeys[a.Key] {
		return slog.Attr{Key: a.Key, Value: slog.StringValue("[REDACTED]")}
	}
	return a
}
