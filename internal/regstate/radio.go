// Package regstate owns the live regulatory state of a device: one
// ChannelEngine per radio, the psoc-wide country state, the rule cache
// and the notification queues.
package regstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/regchan/core"
	"github.com/signalsfoundry/regchan/internal/country"
	"github.com/signalsfoundry/regchan/internal/logging"
	"github.com/signalsfoundry/regchan/kb"
	"github.com/signalsfoundry/regchan/model"
	"github.com/signalsfoundry/regchan/timectrl"
)

// RuleSource supplies rule sets for a country on demand.
type RuleSource interface {
	RuleSet(ctx context.Context, phy uint8, alpha2 string) (*model.RuleSet, error)
}

// RadioConfig is the psoc-level owner of every radio's engine.
type RadioConfig struct {
	cfg     Config
	engines map[uint8]*ChannelEngine
	phys    []uint8

	rules   *kb.RuleCache
	country *country.StateMachine
	source  RuleSource

	// changeMu serialises country transactions so rule sets for two
	// countries never interleave across radios.
	changeMu sync.Mutex

	// psocMu guards the coexistence unsafe-channel cache.
	psocMu sync.Mutex
	unsafe []model.FreqRange

	notifier *Notifier
	unsubKB  func()
	metrics  MetricsRecorder
	nmetrics NotifierMetrics
	sender   SouthboundSender
	scanner  country.ScanCommander
	clock    timectrl.Clock
	log      logging.Logger
}

// Option customises RadioConfig construction.
type Option func(*RadioConfig)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(r *RadioConfig) {
		r.log = logging.OrNoop(l)
	}
}

// WithMetricsRecorder attaches engine metrics.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(r *RadioConfig) {
		r.metrics = m
	}
}

// WithQueueMetrics attaches notification queue metrics.
func WithQueueMetrics(m NotifierMetrics) Option {
	return func(r *RadioConfig) {
		r.nmetrics = m
	}
}

// WithRuleSource attaches the source consulted by SetCountry.
func WithRuleSource(s RuleSource) Option {
	return func(r *RadioConfig) {
		r.source = s
	}
}

// WithSouthbound attaches the southbound transport for CTL summaries and
// channel lists.
func WithSouthbound(s SouthboundSender) Option {
	return func(r *RadioConfig) {
		r.sender = s
	}
}

// WithScanCommander attaches the 11d scan transport.
func WithScanCommander(c country.ScanCommander) Option {
	return func(r *RadioConfig) {
		r.scanner = c
	}
}

// WithClock overrides the time source used for recompute timing and for
// ExpireDueAFC.
func WithClock(c timectrl.Clock) Option {
	return func(r *RadioConfig) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewRadioConfig validates cfg and creates one engine per listed radio.
func NewRadioConfig(cfg Config, phys []uint8, opts ...Option) (*RadioConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(phys) == 0 {
		return nil, fmt.Errorf("%w: no radios", ErrInvalidConfig)
	}
	r := &RadioConfig{
		cfg:     cfg,
		engines: make(map[uint8]*ChannelEngine, len(phys)),
		rules:   kb.NewRuleCache(),
		clock:   timectrl.SystemClock{},
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.notifier = NewNotifier(cfg.MaxSubscribers, cfg.QueueDepth,
		WithSouthboundSender(r.sender),
		WithNotifierMetrics(r.nmetrics),
		WithNotifierLogger(r.log),
	)
	r.country = country.NewStateMachine(cfg.Country,
		country.WithLogger(r.log),
		country.WithScanCommander(r.scanner),
	)

	deps := engineDeps{
		notifier:     r.notifier,
		metrics:      r.metrics,
		clock:        r.clock,
		log:          r.log,
		publishSouth: r.sender != nil,
	}
	for _, phy := range phys {
		if _, dup := r.engines[phy]; dup {
			r.notifier.Close()
			return nil, fmt.Errorf("%w: radio %d listed twice", ErrInvalidConfig, phy)
		}
		r.engines[phy] = newChannelEngine(phy, cfg, deps)
		r.phys = append(r.phys, phy)
	}
	slices.Sort(r.phys)

	r.unsubKB = r.rules.Subscribe(func(ev kb.Event) {
		r.log.Debug(context.Background(), "rule cache updated",
			logging.Phy(ev.PhyID),
			logging.String("event", ev.Type.String()),
			logging.String("alpha2", ev.Alpha2),
		)
	})
	return r, nil
}

// Close drains the notification queues. The engines stay readable.
func (r *RadioConfig) Close() {
	if r.unsubKB != nil {
		r.unsubKB()
	}
	r.notifier.Close()
}

// Config returns the construction config.
func (r *RadioConfig) Config() Config { return r.cfg }

// Phys returns the radio ids in ascending order.
func (r *RadioConfig) Phys() []uint8 { return slices.Clone(r.phys) }

// Engine returns the engine of a radio.
func (r *RadioConfig) Engine(phy uint8) (*ChannelEngine, error) {
	e, ok := r.engines[phy]
	if !ok {
		return nil, fmt.Errorf("%w: %d", model.ErrUnknownRadio, phy)
	}
	return e, nil
}

// Rules exposes the rule cache.
func (r *RadioConfig) Rules() *kb.RuleCache { return r.rules }

// Country returns the psoc-wide country state.
func (r *RadioConfig) Country() model.CountryState { return r.country.State() }

// CountryMachine exposes the country state machine.
func (r *RadioConfig) CountryMachine() *country.StateMachine { return r.country }

// Notifier exposes the notification queues.
func (r *RadioConfig) Notifier() *Notifier { return r.notifier }

// Subscribe registers fn for list-changed notifications of every radio.
func (r *RadioConfig) Subscribe(fn func(ListChanged)) (string, func(), error) {
	return r.notifier.Subscribe(fn)
}

// ProcessRuleSet accepts a rule set from the rule source, rebuilds the
// master lists of its radio, resolves the pending country request and
// recomputes. On error the radio keeps its previous lists.
func (r *RadioConfig) ProcessRuleSet(ctx context.Context, rs *model.RuleSet) error {
	ctx, _ = logging.EnsureTriggerID(ctx)
	r.changeMu.Lock()
	defer r.changeMu.Unlock()
	return r.processRuleSetLocked(ctx, rs)
}

// preparedRuleSet is a validated rule set with its master lists built
// but not yet installed.
type preparedRuleSet struct {
	rs     *model.RuleSet
	engine *ChannelEngine
	master *core.MasterLists
	pair   model.DomainPair
}

func (r *RadioConfig) processRuleSetLocked(ctx context.Context, rs *model.RuleSet) error {
	p, err := r.prepareRuleSet(ctx, rs)
	if err != nil {
		return err
	}
	return r.commitRuleSet(ctx, p)
}

// prepareRuleSet checks rs and builds its master lists without touching
// any radio state.
func (r *RadioConfig) prepareRuleSet(ctx context.Context, rs *model.RuleSet) (preparedRuleSet, error) {
	if rs == nil {
		return preparedRuleSet{}, fmt.Errorf("%w: nil rule set", model.ErrLookupFailure)
	}
	log := r.log.With(logging.Phy(rs.PhyID), logging.String("alpha2", rs.Alpha2))

	e, err := r.Engine(rs.PhyID)
	if err != nil {
		return preparedRuleSet{}, err
	}
	if model.NormalizeAlpha2(rs.Alpha2) == "" {
		err := fmt.Errorf("%w: rule set for radio %d has no country", model.ErrLookupFailure, rs.PhyID)
		log.Warn(ctx, "rule set rejected", logging.Err(err))
		return preparedRuleSet{}, err
	}
	if err := core.CheckCapacity(rs); err != nil {
		log.Warn(ctx, "rule set rejected", logging.Err(err))
		return preparedRuleSet{}, err
	}
	pair, err := core.LookupDomainPair(rs.DomainPairID)
	if err != nil {
		log.Warn(ctx, "rule set rejected", logging.Err(err))
		return preparedRuleSet{}, err
	}
	m, err := core.BuildMaster(rs, r.cfg.BuildConfig(), e.SixGHz())
	if err != nil {
		log.Warn(ctx, "master build failed", logging.Err(err))
		return preparedRuleSet{}, err
	}
	return preparedRuleSet{rs: rs, engine: e, master: m, pair: pair}, nil
}

// commitRuleSet installs a prepared rule set, resolves the pending country
// request of its radio and sends the CTL summary.
func (r *RadioConfig) commitRuleSet(ctx context.Context, p preparedRuleSet) error {
	rs := p.rs
	log := r.log.With(logging.Phy(rs.PhyID), logging.String("alpha2", rs.Alpha2))
	if err := r.rules.Put(rs); err != nil {
		log.Warn(ctx, "rule set rejected", logging.Err(err))
		return err
	}

	p.engine.ApplyMaster(ctx, p.master, p.pair)

	res, scanErr := r.country.OnMasterList(ctx, rs.PhyID, rs.Alpha2)
	if res.Changed && r.metrics != nil {
		r.metrics.IncCountryChange(res.Source)
	}

	if !rs.SelfAuthoritative {
		if err := r.sendCTL(ctx, rs.PhyID, p.pair); err != nil {
			log.Warn(ctx, "CTL summary not sent", logging.Err(err))
		}
	}
	return scanErr
}

func (r *RadioConfig) sendCTL(ctx context.Context, phy uint8, pair model.DomainPair) error {
	payload, err := core.EncodeCTLSummary(core.CTLSummaryFor(pair))
	if err != nil {
		return fmt.Errorf("%w: encode CTL summary: %v", model.ErrInternal, err)
	}
	_, err = r.notifier.PublishSouth(ctx, SouthMessage{PhyID: phy, Kind: SouthCTL, CTL: payload})
	return err
}

// SetCountry requests a country on every radio on behalf of src. Rule
// sets for all radios are fetched, checked and built before any radio is
// touched, so a failure on any radio leaves every list and the country
// state as they were.
func (r *RadioConfig) SetCountry(ctx context.Context, alpha2 string, src model.PendingSource) error {
	ctx, _ = logging.EnsureTriggerID(ctx)
	r.changeMu.Lock()
	defer r.changeMu.Unlock()

	alpha2, err := r.country.BeginChange(alpha2, src, r.phys)
	if err != nil {
		return err
	}
	prepared, err := r.prepareCountry(ctx, alpha2)
	if err != nil {
		for _, phy := range r.phys {
			r.country.ClearPending(phy)
		}
		r.log.Warn(ctx, "country change failed", logging.String("alpha2", alpha2), logging.Err(err))
		return err
	}

	var errs error
	for _, p := range prepared {
		errs = multierr.Append(errs, r.commitRuleSet(ctx, p))
	}
	return errs
}

func (r *RadioConfig) prepareCountry(ctx context.Context, alpha2 string) ([]preparedRuleSet, error) {
	sets, err := r.fetchRuleSets(ctx, alpha2)
	if err != nil {
		return nil, err
	}
	out := make([]preparedRuleSet, 0, len(sets))
	for _, rs := range sets {
		p, err := r.prepareRuleSet(ctx, rs)
		if err != nil {
			return nil, fmt.Errorf("%s on radio %d: %w", alpha2, rs.PhyID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *RadioConfig) fetchRuleSets(ctx context.Context, alpha2 string) ([]*model.RuleSet, error) {
	out := make([]*model.RuleSet, 0, len(r.phys))
	for _, phy := range r.phys {
		if rs := r.rules.Lookup(phy, alpha2); rs != nil {
			out = append(out, rs)
			continue
		}
		if r.source == nil {
			return nil, fmt.Errorf("%w: no rule source for %s", model.ErrNoRulesFound, alpha2)
		}
		rs, err := r.source.RuleSet(ctx, phy, alpha2)
		if err != nil {
			if errors.Is(err, model.ErrNoRulesFound) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s on radio %d: %v", model.ErrNoRulesFound, alpha2, phy, err)
		}
		if rs == nil || rs.Empty() {
			return nil, fmt.Errorf("%w: %s on radio %d", model.ErrNoRulesFound, alpha2, phy)
		}
		rs = rs.Clone()
		rs.PhyID = phy
		out = append(out, rs)
	}
	return out, nil
}

// ResetRadio forgets the rules of a radio and leaves every channel
// disabled until the next rule set.
func (r *RadioConfig) ResetRadio(ctx context.Context, phy uint8) error {
	ctx, _ = logging.EnsureTriggerID(ctx)
	e, err := r.Engine(phy)
	if err != nil {
		return err
	}
	r.changeMu.Lock()
	defer r.changeMu.Unlock()

	if err := r.rules.Remove(phy); err != nil && !errors.Is(err, model.ErrUnknownRadio) {
		return err
	}
	e.ApplyMaster(ctx, nil, model.DomainPair{})
	return nil
}

// SetPolicy replaces the policy of a radio. Coexistence avoid ranges,
// once set, take precedence over the ranges in p.
func (r *RadioConfig) SetPolicy(ctx context.Context, phy uint8, p model.Policy) error {
	e, err := r.Engine(phy)
	if err != nil {
		return err
	}
	p = p.Clone()
	if unsafe := r.UnsafeRanges(); len(unsafe) > 0 {
		p.AvoidFreqs = unsafe
	}
	e.SetPolicy(ctx, p)
	return nil
}

// UpdatePolicy edits the policy of a radio in place.
func (r *RadioConfig) UpdatePolicy(ctx context.Context, phy uint8, fn func(*model.Policy)) error {
	e, err := r.Engine(phy)
	if err != nil {
		return err
	}
	e.UpdatePolicy(ctx, fn)
	return nil
}

// SetNOL marks or clears 5GHz channels on the non-occupancy list of a
// radio.
func (r *RadioConfig) SetNOL(ctx context.Context, phy uint8, chans []uint8, nol bool) error {
	e, err := r.Engine(phy)
	if err != nil {
		return err
	}
	return e.SetNOL(ctx, chans, nol)
}

// SetNOLHistory marks or clears NOL history on 5GHz channels of a radio.
func (r *RadioConfig) SetNOLHistory(ctx context.Context, phy uint8, chans []uint8, hist bool) error {
	e, err := r.Engine(phy)
	if err != nil {
		return err
	}
	return e.SetNOLHistory(ctx, chans, hist)
}

// ProcessAFCEvent applies an AFC power grant to a radio.
func (r *RadioConfig) ProcessAFCEvent(ctx context.Context, phy uint8, ev *model.AFCPowerEvent) (int, error) {
	e, err := r.Engine(phy)
	if err != nil {
		return 0, err
	}
	return e.ProcessAFCEvent(ctx, ev)
}

// SwitchToLPI moves a radio off standard power.
func (r *RadioConfig) SwitchToLPI(ctx context.Context, phy uint8) error {
	e, err := r.Engine(phy)
	if err != nil {
		return err
	}
	e.SwitchToLPI(ctx)
	return nil
}

// CheckAFCExpiry expires every AFC grant due at now and returns the radios
// that lost their grant.
func (r *RadioConfig) CheckAFCExpiry(ctx context.Context, now time.Time) []uint8 {
	var expired []uint8
	for _, phy := range r.phys {
		if r.engines[phy].ExpireAFC(ctx, now) {
			expired = append(expired, phy)
		}
	}
	return expired
}

// ExpireDueAFC runs CheckAFCExpiry at the radio clock's current time.
func (r *RadioConfig) ExpireDueAFC(ctx context.Context) []uint8 {
	return r.CheckAFCExpiry(ctx, r.clock.Now())
}

// SetAvoidFrequencies replaces the coexistence unsafe ranges and applies
// them to every radio.
func (r *RadioConfig) SetAvoidFrequencies(ctx context.Context, ranges []model.FreqRange) error {
	ctx, _ = logging.EnsureTriggerID(ctx)
	r.psocMu.Lock()
	r.unsafe = append([]model.FreqRange(nil), ranges...)
	r.psocMu.Unlock()

	return r.forEachEngine(ctx, func(ctx context.Context, e *ChannelEngine) {
		e.SetAvoidFrequencies(ctx, ranges)
	})
}

// UnsafeRanges returns the cached coexistence ranges.
func (r *RadioConfig) UnsafeRanges() []model.FreqRange {
	r.psocMu.Lock()
	defer r.psocMu.Unlock()
	return append([]model.FreqRange(nil), r.unsafe...)
}

// RecomputeAll reruns every radio's pipeline concurrently.
func (r *RadioConfig) RecomputeAll(ctx context.Context, trigger Trigger) error {
	ctx, _ = logging.EnsureTriggerID(ctx)
	return r.forEachEngine(ctx, func(ctx context.Context, e *ChannelEngine) {
		e.Recompute(ctx, trigger)
	})
}

func (r *RadioConfig) forEachEngine(ctx context.Context, fn func(context.Context, *ChannelEngine)) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, phy := range r.phys {
		e := r.engines[phy]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, e)
			return nil
		})
	}
	return g.Wait()
}

// VdevCreated reports a new virtual interface to the 11d policy.
func (r *RadioConfig) VdevCreated(ctx context.Context, vdevID uint8, mode model.VdevMode) error {
	return r.country.VdevCreated(ctx, vdevID, mode)
}

// VdevDeleted reports a removed virtual interface to the 11d policy.
func (r *RadioConfig) VdevDeleted(ctx context.Context, vdevID uint8) error {
	return r.country.VdevDeleted(ctx, vdevID)
}
