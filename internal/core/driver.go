package core

// driver.go runs a feed end to end: snapshot, build, match, plan, dispatch.
//
// The store snapshot is fetched once per run and never refreshed. Records are
// grouped by identity key; groups may run concurrently (Workers), but the
// records of one group always run in sheet order against the snapshot plus
// what the group itself created or patched earlier. Two rows for the same
// person therefore never produce two Creates, and patches to one target are
// serialized.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the authoritative record store reconciled against.
type Store interface {
	List(ctx context.Context, kind Kind) ([]TargetRecord, error)
	Create(ctx context.Context, kind Kind, fields Fields) (TargetRecord, error)
	Patch(ctx context.Context, kind Kind, id string, fields Fields) (TargetRecord, error)
}

// Observer receives run events. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveRecord(feed string, outcome Outcome, dryRun bool)
	ObserveRun(feed string, report *Report, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRecord(string, Outcome, bool) {}
func (nopObserver) ObserveRun(string, *Report, error)   {}

// ImporterConfig holds the tunables of an Importer.
type ImporterConfig struct {
	// Workers is the number of identity groups processed at once. Default 1.
	Workers int

	// StoreTimeout bounds every store call. Zero means no per-call limit.
	StoreTimeout time.Duration

	// Aliases extends DefaultAliases for every run.
	Aliases map[string]string

	// FeeFallback replaces DefaultFeeFallback for feeds that do not set
	// their own. Zero keeps DefaultFeeFallback.
	FeeFallback float64

	Observer Observer
	Logger   *slog.Logger
}

// Importer reconciles spreadsheet rows with a Store.
type Importer struct {
	store    Store
	workers  int
	timeout  time.Duration
	aliases  map[string]string
	fallback float64
	observer Observer
	logger   *slog.Logger
}

// NewImporter creates an importer writing to store.
func NewImporter(store Store, cfg ImporterConfig) *Importer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Importer{
		store:    store,
		workers:  cfg.Workers,
		timeout:  cfg.StoreTimeout,
		aliases:  cfg.Aliases,
		fallback: cfg.FeeFallback,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// RunRequest describes one import run.
type RunRequest struct {
	Feed  FeedDefinition
	Sheet string
	Rows  []Row

	// Defaults are merged over the layout defaults, e.g. the bus a fee
	// sheet belongs to.
	Defaults Fields

	// DryRun plans every record without calling Create or Patch.
	DryRun bool
}

// Run imports req.Rows. Per-record failures are collected in the report and
// never stop the run. The returned error is non-nil only when the run could
// not start (the snapshot could not be fetched) or ctx ended early; the
// report is returned in both cases.
func (im *Importer) Run(ctx context.Context, req RunRequest) (*Report, error) {
	layout := req.Feed.Layout
	feed := req.Feed.Info.Key

	report := &Report{
		RunID:     uuid.NewString(),
		Feed:      feed,
		Kind:      layout.Kind,
		Sheet:     req.Sheet,
		DryRun:    req.DryRun,
		Origin:    OriginFromContext(ctx),
		StartedAt: time.Now().UTC(),
	}
	logger := im.logger.With("run_id", report.RunID, "feed", feed)

	err := im.run(ctx, req, report, logger)
	report.Duration = time.Since(report.StartedAt)
	report.tally()
	if err != nil {
		report.Error = err.Error()
		logger.Error("import run aborted", "error", err, "processed", report.Created+report.Patched+report.Skipped+report.Failed)
	} else {
		logger.Info("import run finished",
			"dry_run", report.DryRun,
			"created", report.Created,
			"patched", report.Patched,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"conflicts", report.Conflicts,
			"warnings", len(report.Warnings),
			"duration", report.Duration,
		)
	}
	im.observer.ObserveRun(feed, report, err)
	return report, err
}

func (im *Importer) run(ctx context.Context, req RunRequest, report *Report, logger *slog.Logger) error {
	layout := req.Feed.Layout
	if err := layout.Validate(); err != nil {
		return fmt.Errorf("feed %s: %w", req.Feed.Info.Key, err)
	}
	if layout.FeeFallback == 0 && im.fallback > 0 {
		layout.FeeFallback = im.fallback
	}

	defaults := layout.MergeDefaults(req.Defaults)
	built := BuildRecords(layout, req.Rows, defaults)
	report.Records = len(built.Records)
	report.Excluded = built.Excluded
	report.Warnings = built.Warnings
	report.Outcomes = make([]Outcome, len(built.Records))

	logger.Info("import run started", "dry_run", req.DryRun, "records", len(built.Records), "excluded", built.Excluded)
	for _, w := range built.Warnings {
		logger.Warn("cell not readable", "row", w.Row+1, "field", w.Field, "value", w.Value, "message", w.Message)
	}

	targets, err := im.list(ctx, layout.Kind)
	if err != nil {
		return fmt.Errorf("fetch %s snapshot: %w", layout.Kind, err)
	}
	var drivers []TargetRecord
	if layout.Kind == KindVehicle {
		if drivers, err = im.list(ctx, KindDriver); err != nil {
			return fmt.Errorf("fetch %s snapshot: %w", KindDriver, err)
		}
	}

	for _, dup := range CheckUniqueKeys(layout.Kind, targets) {
		logger.Warn("identity key shared by several store records", "key", dup.Key, "ids", dup.IDs)
	}

	state := &runState{
		im:       im,
		feed:     req.Feed.Info.Key,
		kind:     layout.Kind,
		dryRun:   req.DryRun,
		required: RequiredFields(layout.Kind),
		targets:  scopeTargets(targets, layout.ScopeField, defaults, logger),
		drivers:  drivers,
		matcher:  NewMatcher(NewAliasTable(DefaultAliases, im.aliases, layout.Aliases)),
		ledger:   newClaimLedger(targets),
		report:   report,
		logger:   logger,
	}

	var g errgroup.Group
	g.SetLimit(im.workers)
	for _, grp := range groupRecords(built.Records, state.matcher.aliases) {
		g.Go(func() error {
			state.processGroup(ctx, grp)
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

func (im *Importer) list(ctx context.Context, kind Kind) ([]TargetRecord, error) {
	callCtx, cancel := im.callContext(ctx)
	defer cancel()
	return im.store.List(callCtx, kind)
}

func (im *Importer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if im.timeout > 0 {
		return context.WithTimeout(ctx, im.timeout)
	}
	return context.WithCancel(ctx)
}

// recordGroup is the set of records sharing one identity key, in sheet order.
type recordGroup struct {
	key     string
	indices []int
	records []SourceRecord
}

// groupRecords groups records in order of first appearance. Keys that the
// matcher would treat as the same identity (whitespace or alias spellings)
// land in one group.
func groupRecords(records []SourceRecord, aliases AliasTable) []*recordGroup {
	var groups []*recordGroup
	byKey := make(map[string]*recordGroup)

	for i, rec := range records {
		key := rec.Key()
		if alt, ok := aliases.Lookup(key); ok {
			key = alt
		}
		key = compactKey(key)
		if key == "" {
			key = fmt.Sprintf("\x00row:%d", rec.Row())
		}
		grp, ok := byKey[key]
		if !ok {
			grp = &recordGroup{key: key}
			byKey[key] = grp
			groups = append(groups, grp)
		}
		grp.indices = append(grp.indices, i)
		grp.records = append(grp.records, rec)
	}
	return groups
}

// scopeTargets keeps the targets sharing the run's value for field.
func scopeTargets(targets []TargetRecord, field string, defaults Fields, logger *slog.Logger) []TargetRecord {
	if field == "" {
		return targets
	}
	want, ok := defaults.Text(field)
	if !ok {
		logger.Warn("no scope value supplied, matching against every record", "scope_field", field)
		return targets
	}
	var out []TargetRecord
	for _, t := range targets {
		if v, ok := t.Fields.Text(field); ok && v == want {
			out = append(out, t)
		}
	}
	return out
}

// runState is shared by the goroutines of one run.
type runState struct {
	im       *Importer
	feed     string
	kind     Kind
	dryRun   bool
	required []string
	targets  []TargetRecord
	drivers  []TargetRecord
	matcher  *Matcher
	ledger   *claimLedger
	report   *Report
	logger   *slog.Logger

	mu sync.Mutex // guards report.Warnings
}

func (s *runState) processGroup(ctx context.Context, grp *recordGroup) {
	var overlay []TargetRecord
	for i, rec := range grp.records {
		idx := grp.indices[i]
		var out Outcome
		if err := ctx.Err(); err != nil {
			out = s.fail(Outcome{Row: rec.Row(), Name: rec.DisplayName()}, err)
		} else {
			out, overlay = s.processRecord(ctx, rec, overlay)
		}
		s.report.Outcomes[idx] = out
		s.im.observer.ObserveRecord(s.feed, out, s.dryRun)
	}
}

func (s *runState) processRecord(ctx context.Context, rec SourceRecord, overlay []TargetRecord) (Outcome, []TargetRecord) {
	out := Outcome{Row: rec.Row(), Name: rec.DisplayName()}
	log := s.logger.With("row", rec.Row()+1, "name", out.Name)

	rec = s.resolveHints(rec, log)

	match := s.matcher.FindMatch(rec, withOverlay(s.targets, overlay))
	if match.Found() {
		out.Match = match.Level.String()
		out.TargetID = match.Target.ID
	}
	if match.Ambiguous > 0 {
		out.Ambiguous = match.Ambiguous
		log.Warn("ambiguous match, using first candidate", "target_id", match.Target.ID, "extra_candidates", match.Ambiguous)
	}

	plan, err := Plan(rec, match, s.required, s.ledger)
	if err != nil {
		return s.fail(out, err), overlay
	}

	owner := match.Target.ID
	if !match.Found() {
		owner = fmt.Sprintf("pending:%s:%d", s.report.RunID, rec.Row())
	}
	plan = s.claim(plan, owner)

	out.Action = plan.Action
	out.TargetID = plan.TargetID
	out.Fields = plan.Fields.Keys()
	out.Conflicts = plan.Conflicts
	for _, c := range plan.Conflicts {
		log.Warn("relationship conflict", "field", c.Field, "ref_id", c.RefID, "held_by", c.HeldBy)
	}

	switch plan.Action {
	case ActionCreate:
		created, err := s.create(ctx, rec, plan)
		if err != nil {
			s.ledger.ReleaseOwner(owner)
			return s.fail(out, err), overlay
		}
		s.ledger.Rebind(owner, created.ID)
		out.TargetID = created.ID
		log.Debug("record created", "target_id", created.ID, "dry_run", s.dryRun)
		overlay = upsert(overlay, created)

	case ActionPatch:
		updated, err := s.patch(ctx, match.Target, plan)
		if err != nil {
			s.ledger.ReleaseClaims(owner, plan.Fields)
			return s.fail(out, err), overlay
		}
		log.Debug("record patched", "target_id", updated.ID, "fields", out.Fields, "dry_run", s.dryRun)
		overlay = upsert(overlay, updated)
	}

	return out, overlay
}

// resolveHints turns source-only hints into store references.
func (s *runState) resolveHints(rec SourceRecord, log *slog.Logger) SourceRecord {
	name, ok := rec.fields.Text(FieldDriverName)
	if !ok || rec.Has(FieldPrimaryDriverID) {
		return rec
	}

	m := s.matcher.ResolveName(name, s.drivers)
	if !m.Found() {
		log.Warn("driver not found", "driver", name)
		s.addWarning(ParseWarning{Row: rec.Row(), Field: FieldDriverName, Value: name, Message: "no driver with this name"})
		return rec
	}
	if m.Ambiguous > 0 {
		log.Warn("ambiguous driver name, using first candidate", "driver", name, "driver_id", m.Target.ID)
	}
	return rec.With(FieldPrimaryDriverID, m.Target.ID)
}

// claim takes run-wide ownership of every reference the plan sets. A reference
// claimed by another record since planning is dropped as a conflict.
func (s *runState) claim(plan ChangePlan, owner string) ChangePlan {
	for _, field := range sortedRelationshipFields(plan.Fields) {
		ref, _ := plan.Fields.Text(field)
		if holder, ok := s.ledger.Claim(field, ref, owner); !ok {
			delete(plan.Fields, field)
			plan.Conflicts = append(plan.Conflicts, RelationshipConflict{Field: field, RefID: ref, HeldBy: holder})
		}
	}
	if plan.Action == ActionPatch && len(plan.Fields) == 0 {
		plan.Action = ActionSkip
		plan.Fields = nil
	}
	return plan
}

func (s *runState) create(ctx context.Context, rec SourceRecord, plan ChangePlan) (TargetRecord, error) {
	if s.dryRun {
		return TargetRecord{ID: fmt.Sprintf("dry-run:%d", rec.Row()+1), Fields: plan.Fields.Clone()}, nil
	}

	callCtx, cancel := s.im.callContext(ctx)
	defer cancel()

	created, err := s.im.store.Create(callCtx, s.kind, plan.Fields)
	if err != nil {
		return TargetRecord{}, err
	}
	if created.ID == "" {
		return TargetRecord{}, &StoreError{Op: "create", Kind: s.kind, Message: "store returned a record without an id"}
	}
	created.Fields = mergeFields(plan.Fields, created.Fields)
	return created, nil
}

func (s *runState) patch(ctx context.Context, target TargetRecord, plan ChangePlan) (TargetRecord, error) {
	merged := TargetRecord{ID: target.ID, Fields: mergeFields(target.Fields, plan.Fields)}
	if s.dryRun {
		return merged, nil
	}

	callCtx, cancel := s.im.callContext(ctx)
	defer cancel()

	updated, err := s.im.store.Patch(callCtx, s.kind, target.ID, plan.Fields)
	if err != nil {
		return TargetRecord{}, err
	}
	merged.Fields = mergeFields(merged.Fields, updated.Fields)
	return merged, nil
}

func (s *runState) fail(out Outcome, err error) Outcome {
	msg := MapError(err)
	out.Error = err.Error()
	out.Code = msg.Code
	if IsTransport(err) {
		s.logger.Error("record failed, store unreachable", "row", out.Row+1, "name", out.Name, "code", msg.Code, "error", err)
	} else {
		s.logger.Warn("record failed", "row", out.Row+1, "name", out.Name, "code", msg.Code, "error", err)
	}
	return out
}

func (s *runState) addWarning(w ParseWarning) {
	s.mu.Lock()
	s.report.Warnings = append(s.report.Warnings, w)
	s.mu.Unlock()
}

// withOverlay returns targets with the group's own writes applied.
func withOverlay(targets, overlay []TargetRecord) []TargetRecord {
	if len(overlay) == 0 {
		return targets
	}
	out := make([]TargetRecord, 0, len(targets)+len(overlay))
	replaced := make(map[string]bool, len(overlay))
	for _, t := range targets {
		if o, ok := findByID(overlay, t.ID); ok {
			out = append(out, o)
			replaced[t.ID] = true
			continue
		}
		out = append(out, t)
	}
	for _, o := range overlay {
		if !replaced[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

func findByID(records []TargetRecord, id string) (TargetRecord, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return TargetRecord{}, false
}

func upsert(records []TargetRecord, rec TargetRecord) []TargetRecord {
	for i, r := range records {
		if r.ID == rec.ID {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}

// mergeFields returns base overlaid with every set value of top.
func mergeFields(base, top Fields) Fields {
	out := base.Clone()
	for k, v := range top {
		if isSet(v) {
			out[k] = v
		}
	}
	return out
}

// claimLedger tracks which record holds each reference during a run. It is
// seeded from the snapshot so existing assignments are respected.
type claimLedger struct {
	mu      sync.Mutex
	holders map[claimKey]string
}

type claimKey struct {
	field string
	ref   string
}

func newClaimLedger(targets []TargetRecord) *claimLedger {
	l := &claimLedger{holders: make(map[claimKey]string)}
	for _, t := range targets {
		for field := range relationshipFields {
			ref, ok := t.Fields.Text(field)
			if !ok {
				continue
			}
			key := claimKey{field, ref}
			if _, taken := l.holders[key]; !taken {
				l.holders[key] = t.ID
			}
		}
	}
	return l
}

// HolderOf implements Assignments.
func (l *claimLedger) HolderOf(field, ref string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holders[claimKey{field, ref}]
	return h, ok
}

// Claim gives ref to owner unless someone else holds it.
func (l *claimLedger) Claim(field, ref, owner string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := claimKey{field, ref}
	if h, ok := l.holders[key]; ok && h != owner {
		return h, false
	}
	l.holders[key] = owner
	return owner, true
}

// ReleaseClaims drops the claims owner took for the given fields.
func (l *claimLedger) ReleaseClaims(owner string, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for field := range relationshipFields {
		ref, ok := fields.Text(field)
		if !ok {
			continue
		}
		key := claimKey{field, ref}
		if l.holders[key] == owner {
			delete(l.holders, key)
		}
	}
}

// ReleaseOwner drops every claim held by owner.
func (l *claimLedger) ReleaseOwner(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, h := range l.holders {
		if h == owner {
			delete(l.holders, key)
		}
	}
}

// Rebind moves claims from a placeholder owner to the created record's ID.
func (l *claimLedger) Rebind(from, to string) {
	if from == to {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, h := range l.holders {
		if h == from {
			l.holders[key] = to
		}
	}
}
