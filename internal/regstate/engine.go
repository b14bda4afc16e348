package regstate

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/signalsfoundry/regchan/core"
	"github.com/signalsfoundry/regchan/internal/logging"
	"github.com/signalsfoundry/regchan/internal/observability"
	"github.com/signalsfoundry/regchan/model"
	"github.com/signalsfoundry/regchan/timectrl"
)

// Trigger names the event that caused a recompute.
type Trigger string

const (
	TriggerMasterList Trigger = "master_list"
	TriggerPolicy     Trigger = "policy"
	TriggerNOL        Trigger = "nol"
	TriggerAFC        Trigger = "afc"
	TriggerAvoidFreq  Trigger = "avoid_freq"
	TriggerManual     Trigger = "manual"
)

// AFC event outcomes reported to MetricsRecorder.
const (
	AFCOutcomeGranted = "granted"
	AFCOutcomeExpired = "expired"
	AFCOutcomeLPI     = "switch_to_lpi"
	AFCOutcomeIgnored = "ignored"
)

// MetricsRecorder receives per-radio engine metrics. The observability
// RegCollector satisfies it.
type MetricsRecorder interface {
	ObserveRecompute(phy uint8, trigger string, d time.Duration, err error)
	SetChannelCounts(phy uint8, counts map[model.ChannelState]int)
	SetNOLCount(phy uint8, n int)
	IncAFCEvent(phy uint8, outcome string)
	IncCountryChange(source model.CountrySource)
}

// ChannelEngine owns the channel lists of one radio. Triggers are
// serialised by mu and run to completion in issue order; readers use the
// snapshot lock and never wait on a recompute.
type ChannelEngine struct {
	phy  uint8
	six  core.SixGHzSupport
	afc  core.AFCHandler
	pubS bool

	// mu serialises triggers. Take it before snapMu.
	mu      sync.Mutex
	master  *core.MasterLists
	domain  model.DomainPair
	policy  model.Policy
	nol     map[uint16]struct{}
	nolHist map[uint16]struct{}

	snapMu    sync.RWMutex
	current   model.ChannelList
	secondary model.ChannelList

	notifier *Notifier
	metrics  MetricsRecorder
	clock    timectrl.Clock
	log      logging.Logger
}

type engineDeps struct {
	notifier *Notifier
	metrics  MetricsRecorder
	clock    timectrl.Clock
	log      logging.Logger
	// publishSouth sends every new current list southbound.
	publishSouth bool
}

func newChannelEngine(phy uint8, cfg Config, deps engineDeps) *ChannelEngine {
	clock := deps.clock
	if clock == nil {
		clock = timectrl.SystemClock{}
	}
	e := &ChannelEngine{
		phy:      phy,
		six:      core.NewSixGHzSupport(cfg.Enable6G),
		afc:      core.NewAFCHandler(cfg.EnableAFC),
		pubS:     deps.publishSouth,
		policy:   model.DefaultPolicy(),
		nol:      make(map[uint16]struct{}),
		nolHist:  make(map[uint16]struct{}),
		notifier: deps.notifier,
		metrics:  deps.metrics,
		clock:    clock,
		log:      logging.OrNoop(deps.log).With(logging.Phy(phy)),
	}
	out := core.Compute(core.PipelineInput{})
	e.current, e.secondary = out.Current, out.Secondary
	return e
}

// PhyID returns the radio this engine serves.
func (e *ChannelEngine) PhyID() uint8 { return e.phy }

// SixGHz returns the 6GHz implementation selected at construction.
func (e *ChannelEngine) SixGHz() core.SixGHzSupport { return e.six }

// Current returns a copy of the current channel list.
func (e *ChannelEngine) Current() model.ChannelList {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.current.Clone()
}

// Secondary returns a copy of the secondary current list.
func (e *ChannelEngine) Secondary() model.ChannelList {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.secondary.Clone()
}

// Channel returns the current entry at a center frequency.
func (e *ChannelEngine) Channel(freq uint16) (model.RegulatoryChannel, error) {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	i, ok := e.current.FindFreq(freq)
	if !ok {
		e.log.Debug(context.Background(), "channel lookup missed", logging.Int("freq", int(freq)))
		return model.RegulatoryChannel{}, fmt.Errorf("%w: freq %d", model.ErrInvalidChannel, freq)
	}
	return e.current[i], nil
}

// Master returns a copy of the 2.4/4.9/5GHz master list, or nil before
// the first rule set.
func (e *ChannelEngine) Master() model.ChannelList {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.master == nil {
		return nil
	}
	return e.master.Master.Clone()
}

// AP6GMaster returns a copy of the 6GHz master list for an AP power type.
func (e *ChannelEngine) AP6GMaster(ap model.APPowerType) model.ChannelList {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.master == nil || ap >= model.NumAPTypes {
		return nil
	}
	return e.master.AP6G[ap].Clone()
}

// Client6GMaster returns a copy of the 6GHz client master list.
func (e *ChannelEngine) Client6GMaster(ap model.APPowerType, ct model.ClientType) model.ChannelList {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.master == nil || ap >= model.NumAPTypes || ct >= model.NumClientTypes {
		return nil
	}
	return e.master.Client6G[ap][ct].Clone()
}

// AFCList returns a copy of the AFC list, nil without an active grant.
func (e *ChannelEngine) AFCList() model.ChannelList {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.afc.List().Clone()
}

// AFCState reports the AFC lifecycle state and grant expiry.
func (e *ChannelEngine) AFCState() (model.AFCState, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.afc.State(), e.afc.Expiry()
}

// Policy returns a copy of the live policy.
func (e *ChannelEngine) Policy() model.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Clone()
}

// Domain returns the domain pair of the active master list.
func (e *ChannelEngine) Domain() model.DomainPair {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.domain
}

// Table returns the enumeration table of the active master list.
func (e *ChannelEngine) Table() *core.ChannelTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tableLocked()
}

// NOLFreqs returns the center frequencies on the non-occupancy list.
func (e *ChannelEngine) NOLFreqs() []uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedFreqs(e.nol)
}

// ApplyMaster installs freshly built master lists and recomputes. A nil
// master leaves every channel disabled. NOL marks carry over and any AFC
// grant is dropped.
func (e *ChannelEngine) ApplyMaster(ctx context.Context, m *core.MasterLists, domain model.DomainPair) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.master = m
	e.domain = domain
	if m != nil {
		for freq := range e.nol {
			e.markLocked(ctx, freq, true, m.MarkNOL)
		}
		for freq := range e.nolHist {
			e.markLocked(ctx, freq, true, m.MarkNOLHistory)
		}
	}
	e.afc.Reset()
	e.recomputeLocked(ctx, TriggerMasterList)
}

// SetPolicy replaces the live policy and recomputes.
func (e *ChannelEngine) SetPolicy(ctx context.Context, p model.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p.Clone()
	e.recomputeLocked(ctx, TriggerPolicy)
}

// UpdatePolicy edits the live policy in place and recomputes.
func (e *ChannelEngine) UpdatePolicy(ctx context.Context, fn func(*model.Policy)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.policy.Clone()
	fn(&p)
	e.policy = p
	e.recomputeLocked(ctx, TriggerPolicy)
}

// SetAvoidFrequencies replaces the unsafe ranges and recomputes. The
// resulting notification carries the channels that changed.
func (e *ChannelEngine) SetAvoidFrequencies(ctx context.Context, ranges []model.FreqRange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy.AvoidFreqs = append([]model.FreqRange(nil), ranges...)
	e.recomputeLocked(ctx, TriggerAvoidFreq)
}

// SetNOL marks or clears 5GHz channels, by channel number, on the
// non-occupancy list and recomputes. Unknown channels are reported but do
// not stop the rest from being applied.
func (e *ChannelEngine) SetNOL(ctx context.Context, chans []uint8, nol bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	errs := e.updateFreqSetLocked(ctx, e.nol, chans, nol, func(m *core.MasterLists) func(uint16, bool) error {
		return m.MarkNOL
	})
	if e.metrics != nil {
		e.metrics.SetNOLCount(e.phy, len(e.nol))
	}
	e.recomputeLocked(ctx, TriggerNOL)
	return errs
}

// SetNOLHistory marks or clears NOL history on 5GHz channels. History is
// informational and does not change channel state.
func (e *ChannelEngine) SetNOLHistory(ctx context.Context, chans []uint8, hist bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	errs := e.updateFreqSetLocked(ctx, e.nolHist, chans, hist, func(m *core.MasterLists) func(uint16, bool) error {
		return m.MarkNOLHistory
	})
	e.recomputeLocked(ctx, TriggerNOL)
	return errs
}

// ProcessAFCEvent applies an AFC power grant and recomputes. It returns
// the number of channels granted. Radios without AFC ignore the event.
func (e *ChannelEngine) ProcessAFCEvent(ctx context.Context, ev *model.AFCPowerEvent) (int, error) {
	if ev == nil {
		return 0, fmt.Errorf("%w: nil AFC event", model.ErrInternal)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.afc.Enabled() || e.master == nil {
		e.incAFC(AFCOutcomeIgnored)
		e.log.Debug(ctx, "AFC event ignored", logging.Uint("request_id", uint64(ev.RequestID)))
		return 0, nil
	}
	granted := e.afc.ProcessPowerEvent(ev, e.master.AP6G[model.APTypeSP], e.master.Table)
	e.incAFC(AFCOutcomeGranted)
	e.log.Info(ctx, "AFC power event applied",
		logging.Uint("request_id", uint64(ev.RequestID)),
		logging.Int("granted", granted),
		logging.String("expiry", ev.Expiry.UTC().Format(time.RFC3339)),
	)
	e.recomputeLocked(ctx, TriggerAFC)
	return granted, nil
}

// ExpireAFC drops the AFC grant when its expiry is at or before now and
// reports whether it did.
func (e *ChannelEngine) ExpireAFC(ctx context.Context, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.afc.State() != model.AFCPowerEventReceived {
		return false
	}
	exp := e.afc.Expiry()
	if exp.IsZero() || now.Before(exp) {
		return false
	}
	e.afc.Reset()
	e.incAFC(AFCOutcomeExpired)
	e.log.Info(ctx, "AFC grant expired", logging.String("expiry", exp.UTC().Format(time.RFC3339)))
	e.recomputeLocked(ctx, TriggerAFC)
	return true
}

// SwitchToLPI drops any AFC grant, moves the radio to low-power-indoor
// operation and recomputes.
func (e *ChannelEngine) SwitchToLPI(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.afc.Reset()
	e.policy.AP6GPowerType = model.APTypeLPI
	e.incAFC(AFCOutcomeLPI)
	e.log.Info(ctx, "switched to LPI")
	e.recomputeLocked(ctx, TriggerAFC)
}

// Recompute reruns the pipeline on the current inputs.
func (e *ChannelEngine) Recompute(ctx context.Context, trigger Trigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recomputeLocked(ctx, trigger)
}

func (e *ChannelEngine) recomputeLocked(ctx context.Context, trigger Trigger) {
	ctx, triggerID := logging.EnsureTriggerID(ctx)
	ctx, span := observability.StartRecompute(ctx, e.phy, string(trigger))
	start := e.clock.Now()

	out := core.Compute(core.PipelineInput{
		Master: e.master,
		AFC:    e.afc.List(),
		Policy: e.policy,
		Domain: e.domain,
	})

	e.snapMu.Lock()
	prev := e.current
	e.current, e.secondary = out.Current, out.Secondary
	e.snapMu.Unlock()

	var delta []uint16
	if trigger == TriggerAvoidFreq {
		delta = core.AvoidDelta(prev, out.Current)
	}

	err := e.publishLocked(ctx, ListChanged{
		PhyID:      e.phy,
		Trigger:    trigger,
		TriggerID:  triggerID,
		Current:    out.Current.Clone(),
		Secondary:  out.Secondary.Clone(),
		AvoidDelta: delta,
	})

	elapsed := e.clock.Now().Sub(start)
	if e.metrics != nil {
		e.metrics.ObserveRecompute(e.phy, string(trigger), elapsed, err)
		e.metrics.SetChannelCounts(e.phy, out.Current.CountByState())
	}
	e.log.Debug(ctx, "channel list recomputed",
		logging.String("trigger", string(trigger)),
		logging.Int("avoid_delta", len(delta)),
	)
	observability.EndSpan(span, err)
}

// publishLocked queues the notifications of one recompute. A recompute
// itself never fails; delivery problems are only logged.
func (e *ChannelEngine) publishLocked(ctx context.Context, ev ListChanged) error {
	if e.notifier == nil {
		return nil
	}
	var errs error
	if _, err := e.notifier.PublishList(ctx, ev); err != nil {
		errs = multierr.Append(errs, err)
	}
	if e.pubS {
		msg := SouthMessage{PhyID: e.phy, Kind: SouthChannelList, Channels: ev.Current}
		if _, err := e.notifier.PublishSouth(ctx, msg); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		e.log.Warn(ctx, "notification not queued", logging.Err(errs))
	}
	return errs
}

func (e *ChannelEngine) tableLocked() *core.ChannelTable {
	if e.master != nil {
		return e.master.Table
	}
	return core.TableFor(model.DFSRegionUninit)
}

// updateFreqSetLocked adds or removes 5GHz channels from set and mirrors
// the change into the master list when one is installed.
func (e *ChannelEngine) updateFreqSetLocked(
	ctx context.Context,
	set map[uint16]struct{},
	chans []uint8,
	on bool,
	marker func(*core.MasterLists) func(uint16, bool) error,
) error {
	table := e.tableLocked()
	var errs error
	for _, ch := range chans {
		i, err := table.IndexOfChannel(model.Band5G, ch)
		if err != nil {
			e.log.Debug(ctx, "NOL channel not in table", logging.Int("chan", int(ch)))
			errs = multierr.Append(errs, err)
			continue
		}
		freq := table.Entry(i).CenterFreq
		if on {
			set[freq] = struct{}{}
		} else {
			delete(set, freq)
		}
		if e.master != nil {
			e.markLocked(ctx, freq, on, marker(e.master))
		}
	}
	return errs
}

func (e *ChannelEngine) markLocked(ctx context.Context, freq uint16, on bool, mark func(uint16, bool) error) {
	if err := mark(freq, on); err != nil {
		e.log.Debug(ctx, "mark skipped", logging.Int("freq", int(freq)), logging.Err(err))
	}
}

func (e *ChannelEngine) incAFC(outcome string) {
	if e.metrics != nil {
		e.metrics.IncAFCEvent(e.phy, outcome)
	}
}

func sortedFreqs(set map[uint16]struct{}) []uint16 {
	out := make([]uint16, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
