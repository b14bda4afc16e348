package regstate

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/signalsfoundry/regchan/core"
	"github.com/signalsfoundry/regchan/model"
	"github.com/signalsfoundry/regchan/timectrl"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}

	cfg := DefaultConfig()
	cfg.MinBW2G = 7
	cfg.MaxSubscribers = 0
	cfg.Enable6G = false
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate err = %v, want ErrInvalidConfig", err)
	}
	if got := len(multierr.Errors(err)); got != 3 {
		t.Fatalf("got %d problems, want 3: %v", got, err)
	}
	if _, err := NewRadioConfig(cfg, []uint8{0}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("NewRadioConfig err = %v", err)
	}
	if _, err := NewRadioConfig(DefaultConfig(), []uint8{0, 0}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("duplicate radios err = %v", err)
	}
}

func TestEngineStartsAllDisabled(t *testing.T) {
	r := newTestRadio(t, []uint8{0})
	cur := mustEngine(t, r, 0).Current()
	if len(cur) != core.NumChannels {
		t.Fatalf("len = %d, want %d", len(cur), core.NumChannels)
	}
	for i, ch := range cur {
		if !ch.IsDisabled() {
			t.Fatalf("channel %d usable before any rule set: %+v", i, ch)
		}
	}
}

func TestProcessRuleSetBuildsListsAndSendsCTL(t *testing.T) {
	sender := &recordingSender{}
	metrics := newStubMetrics()
	r := newTestRadio(t, []uint8{0}, WithSouthbound(sender), WithMetricsRecorder(metrics))

	mustProcess(t, r, usRuleSet(0))
	e := mustEngine(t, r, 0)
	cur := e.Current()

	if ch := cur[idxCh36]; ch.State != model.StateEnable || ch.MaxBW != 160 || ch.TxPower != 24 {
		t.Fatalf("ch36 = %+v", ch)
	}
	if ch := cur[idxCh52]; ch.State != model.StateDFS || ch.Flags&model.FlagRadar == 0 {
		t.Fatalf("ch52 = %+v", ch)
	}
	st := r.Country()
	if st.Current != "US" || st.Source != model.SourceDriver || st.Default != "US" {
		t.Fatalf("country state %+v", st)
	}
	if metrics.country[model.SourceDriver] != 1 {
		t.Fatalf("country change metric %v", metrics.country)
	}
	if got := r.Rules().Active(0); got == nil || got.Alpha2 != "US" {
		t.Fatalf("rule cache active = %+v", got)
	}

	r.Close()
	ctls := sender.byKind(SouthCTL)
	if len(ctls) != 1 {
		t.Fatalf("got %d CTL messages, want 1", len(ctls))
	}
	summary, err := core.DecodeCTLSummary(ctls[0].CTL)
	if err != nil {
		t.Fatalf("DecodeCTLSummary: %v", err)
	}
	if summary.PairID != 0x003A || summary.CTL2G != core.CTLFCC || summary.CTL5G != core.CTLFCC {
		t.Fatalf("summary %+v", summary)
	}
	if lists := sender.byKind(SouthChannelList); len(lists) == 0 {
		t.Fatalf("expected channel lists southbound")
	}
}

func TestSelfAuthoritativeRuleSetSkipsCTL(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRadio(t, []uint8{0}, WithSouthbound(sender))
	rs := usRuleSet(0)
	rs.SelfAuthoritative = true
	mustProcess(t, r, rs)
	r.Close()
	if got := sender.byKind(SouthCTL); len(got) != 0 {
		t.Fatalf("self-authoritative rule set produced CTL %+v", got)
	}
}

func TestRejectedRuleSetKeepsPreviousLists(t *testing.T) {
	r := newTestRadio(t, []uint8{0})
	mustProcess(t, r, usRuleSet(0))
	e := mustEngine(t, r, 0)
	before := e.Current()

	big := usRuleSet(0)
	for len(big.Rules2G)+len(big.Rules5G) <= core.MaxRegRules {
		big.Rules5G = append(big.Rules5G, big.Rules5G[0])
	}
	if err := r.ProcessRuleSet(context.Background(), big); !errors.Is(err, model.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}

	badPair := usRuleSet(0)
	badPair.DomainPairID = 0xFFFF
	if err := r.ProcessRuleSet(context.Background(), badPair); !errors.Is(err, model.ErrLookupFailure) {
		t.Fatalf("err = %v, want ErrLookupFailure", err)
	}

	if diff := cmp.Diff(before, e.Current()); diff != "" {
		t.Fatalf("current list changed after rejection (-want +got):\n%s", diff)
	}

	if err := r.ProcessRuleSet(context.Background(), usRuleSet(9)); !errors.Is(err, model.ErrUnknownRadio) {
		t.Fatalf("err = %v, want ErrUnknownRadio", err)
	}
}

func TestNOLPersistsAcrossTriggers(t *testing.T) {
	metrics := newStubMetrics()
	r := newTestRadio(t, []uint8{0}, WithMetricsRecorder(metrics))
	ctx := context.Background()
	mustProcess(t, r, usRuleSet(0))
	e := mustEngine(t, r, 0)

	if err := r.SetNOL(ctx, 0, []uint8{52}, true); err != nil {
		t.Fatalf("SetNOL: %v", err)
	}
	if ch := e.Current()[idxCh52]; ch.State != model.StateDisable || !ch.NOL {
		t.Fatalf("ch52 after NOL = %+v", ch)
	}
	if metrics.nol[0] != 1 {
		t.Fatalf("NOL gauge = %d, want 1", metrics.nol[0])
	}

	// Neither a policy change nor a master rebuild lifts the NOL.
	if err := r.UpdatePolicy(ctx, 0, func(p *model.Policy) { p.Chan144Enabled = false }); err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	mustProcess(t, r, usRuleSet(0))
	if ch := e.Current()[idxCh52]; ch.State != model.StateDisable {
		t.Fatalf("ch52 after rebuild = %+v", ch)
	}
	if got := e.NOLFreqs(); !slices.Equal(got, []uint16{5260}) {
		t.Fatalf("NOLFreqs = %v", got)
	}

	if err := r.SetNOL(ctx, 0, []uint8{52}, false); err != nil {
		t.Fatalf("clear NOL: %v", err)
	}
	if ch := e.Current()[idxCh52]; ch.State != model.StateDFS || ch.NOL {
		t.Fatalf("ch52 after clear = %+v", ch)
	}
}

func TestSetNOLReportsUnknownChannels(t *testing.T) {
	r := newTestRadio(t, []uint8{0})
	mustProcess(t, r, usRuleSet(0))

	err := r.SetNOL(context.Background(), 0, []uint8{100, 7}, true)
	if !errors.Is(err, model.ErrInvalidChannel) {
		t.Fatalf("err = %v, want ErrInvalidChannel", err)
	}
	if ch := mustEngine(t, r, 0).Current()[idxCh100]; ch.State != model.StateDisable {
		t.Fatalf("valid channel in the same request not applied: %+v", ch)
	}

	if err := r.SetNOLHistory(context.Background(), 0, []uint8{100}, true); err != nil {
		t.Fatalf("SetNOLHistory: %v", err)
	}
	if m := mustEngine(t, r, 0).Master(); !m[idxCh100].NOLHistory {
		t.Fatalf("NOL history not marked on master")
	}
}

func TestAvoidFrequenciesNotifiesDelta(t *testing.T) {
	r := newTestRadio(t, []uint8{0})
	mustProcess(t, r, usRuleSet(0))

	events := make(chan ListChanged, 16)
	if _, _, err := r.Subscribe(func(ev ListChanged) { events <- ev }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := r.SetAvoidFrequencies(context.Background(), []model.FreqRange{{Low: 5755, High: 5775}}); err != nil {
		t.Fatalf("SetAvoidFrequencies: %v", err)
	}

	ev := receive(t, events)
	for ev.Trigger != TriggerAvoidFreq {
		ev = receive(t, events)
	}
	if diff := cmp.Diff([]uint16{5745, 5765, 5785, 5805}, ev.AvoidDelta); diff != "" {
		t.Fatalf("avoid delta (-want +got):\n%s", diff)
	}
	if ev.TriggerID == "" {
		t.Fatalf("notification missing trigger id")
	}
	if ch := ev.Current[idxCh149]; ch.MaxBW != 20 || ch.IsDisabled() {
		t.Fatalf("ch149 = %+v, want 20MHz enabled", ch)
	}
	if ch := ev.Current[idxCh153]; !ch.IsDisabled() {
		t.Fatalf("ch153 = %+v, want disabled", ch)
	}
	if diff := cmp.Diff(ev.Current, ev.Secondary); diff != "" {
		t.Fatalf("secondary list diverged (-cur +sec):\n%s", diff)
	}

	// Policy updates keep the coexistence ranges.
	if err := r.SetPolicy(context.Background(), 0, model.DefaultPolicy()); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	if ch := mustEngine(t, r, 0).Current()[idxCh153]; !ch.IsDisabled() {
		t.Fatalf("avoid range dropped by SetPolicy: %+v", ch)
	}
	if got := r.UnsafeRanges(); len(got) != 1 {
		t.Fatalf("UnsafeRanges = %v", got)
	}
}

func afcEvent(expiry time.Time) *model.AFCPowerEvent {
	return &model.AFCPowerEvent{
		RequestID: 11,
		Expiry:    expiry,
		FreqObjs:  []model.AFCFreqObj{{LowFreq: 5945, HighFreq: 5965, MaxPSD: 400}},
		ChanObjs: []model.AFCChanObj{
			{OpClass: 131, CFIs: []model.AFCCFI{{CFI: 1, MaxEIRP: 4000}}},
		},
	}
}

func TestAFCLifecycle(t *testing.T) {
	metrics := newStubMetrics()
	r := newTestRadio(t, []uint8{0}, WithMetricsRecorder(metrics))
	ctx := context.Background()
	mustProcess(t, r, usRuleSet(0))
	if err := r.UpdatePolicy(ctx, 0, func(p *model.Policy) { p.AP6GPowerType = model.APTypeSP }); err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	e := mustEngine(t, r, 0)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	granted, err := r.ProcessAFCEvent(ctx, 0, afcEvent(t0.Add(time.Hour)))
	if err != nil || granted != 1 {
		t.Fatalf("ProcessAFCEvent = %d, %v", granted, err)
	}
	if st, exp := e.AFCState(); st != model.AFCPowerEventReceived || !exp.Equal(t0.Add(time.Hour)) {
		t.Fatalf("AFC state %s expiry %v", st, exp)
	}
	cur := e.Current()
	if ch := cur[idx6GCh1]; ch.TxPower != 10 || ch.PSDEIRP != 4 || ch.IsDisabled() {
		t.Fatalf("6G ch1 under AFC = %+v", ch)
	}
	if ch := cur[idx6GCh1+1]; !ch.IsDisabled() {
		t.Fatalf("ungranted 6G channel usable: %+v", ch)
	}

	if got := r.CheckAFCExpiry(ctx, t0.Add(30*time.Minute)); len(got) != 0 {
		t.Fatalf("expired early: %v", got)
	}
	if got := r.CheckAFCExpiry(ctx, t0.Add(2*time.Hour)); !slices.Equal(got, []uint8{0}) {
		t.Fatalf("CheckAFCExpiry = %v, want [0]", got)
	}
	if e.AFCList() != nil {
		t.Fatalf("AFC list survived expiry")
	}
	if ch := e.Current()[idx6GCh1]; ch.PSDEIRP != 5 {
		t.Fatalf("6G ch1 after expiry = %+v, want the standard-power master entry", ch)
	}

	if _, err := r.ProcessAFCEvent(ctx, 0, afcEvent(t0.Add(time.Hour))); err != nil {
		t.Fatalf("ProcessAFCEvent: %v", err)
	}
	if err := r.SwitchToLPI(ctx, 0); err != nil {
		t.Fatalf("SwitchToLPI: %v", err)
	}
	if st, _ := e.AFCState(); st != model.AFCNoData {
		t.Fatalf("AFC state after LPI = %s", st)
	}
	if p := e.Policy(); p.AP6GPowerType != model.APTypeLPI {
		t.Fatalf("AP power type = %s", p.AP6GPowerType)
	}
	if ch := e.Current()[idx6GCh1]; ch.TxPower != 24 {
		t.Fatalf("6G ch1 under LPI = %+v", ch)
	}
	if metrics.afc[AFCOutcomeGranted] != 2 || metrics.afc[AFCOutcomeExpired] != 1 || metrics.afc[AFCOutcomeLPI] != 1 {
		t.Fatalf("AFC metrics %v", metrics.afc)
	}
}

func TestAFCIgnoredWithoutCapability(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAFC = false
	r, err := NewRadioConfig(cfg, []uint8{0})
	if err != nil {
		t.Fatalf("NewRadioConfig: %v", err)
	}
	defer r.Close()
	mustProcess(t, r, usRuleSet(0))
	granted, err := r.ProcessAFCEvent(context.Background(), 0, afcEvent(time.Now().Add(time.Hour)))
	if err != nil || granted != 0 {
		t.Fatalf("ProcessAFCEvent = %d, %v; want 0, nil", granted, err)
	}
	if _, err := r.ProcessAFCEvent(context.Background(), 0, nil); !errors.Is(err, model.ErrInternal) {
		t.Fatalf("nil event err = %v", err)
	}
}

func TestSetCountry(t *testing.T) {
	src := newMapRuleSource()
	metrics := newStubMetrics()
	r := newTestRadio(t, []uint8{0, 1}, WithRuleSource(src), WithMetricsRecorder(metrics))
	ctx := context.Background()

	if err := r.SetCountry(ctx, "de", model.PendingUser); err != nil {
		t.Fatalf("SetCountry(de): %v", err)
	}
	st := r.Country()
	if st.Current != "DE" || st.Source != model.SourceUserspace || !st.UserSet {
		t.Fatalf("country state %+v", st)
	}
	for _, phy := range r.Phys() {
		e := mustEngine(t, r, phy)
		if ch := e.Current()[idxCh149]; !ch.IsDisabled() {
			t.Fatalf("radio %d ch149 usable in DE: %+v", phy, ch)
		}
		if e.Table().Name() != "eu" {
			t.Fatalf("radio %d table %s", phy, e.Table().Name())
		}
		if got := r.CountryMachine().Pending(phy); got != model.PendingNone {
			t.Fatalf("radio %d still pending %s", phy, got)
		}
	}

	if err := r.SetCountry(ctx, "DE", model.PendingUser); !errors.Is(err, model.ErrNoChange) {
		t.Fatalf("repeat SetCountry err = %v, want ErrNoChange", err)
	}

	before := mustEngine(t, r, 1).Current()
	if err := r.SetCountry(ctx, "XX", model.PendingUser); !errors.Is(err, model.ErrNoRulesFound) {
		t.Fatalf("SetCountry(XX) err = %v, want ErrNoRulesFound", err)
	}
	if diff := cmp.Diff(before, mustEngine(t, r, 1).Current()); diff != "" {
		t.Fatalf("failed country change touched radio 1 (-want +got):\n%s", diff)
	}
	if r.Country().Current != "DE" || r.CountryMachine().Pending(0) != model.PendingNone {
		t.Fatalf("failed change left state %+v pending %s", r.Country(), r.CountryMachine().Pending(0))
	}

	if err := r.SetCountry(ctx, "US", model.PendingUser); err != nil {
		t.Fatalf("SetCountry(US): %v", err)
	}
	lookups := src.lookups()
	if err := r.SetCountry(ctx, "DE", model.PendingUser); err != nil {
		t.Fatalf("SetCountry(DE) again: %v", err)
	}
	if src.lookups() != lookups {
		t.Fatalf("cached rule sets were fetched again")
	}
	if metrics.country[model.SourceUserspace] != 3 {
		t.Fatalf("country changes %v", metrics.country)
	}
}

func TestSetCountryWithoutSource(t *testing.T) {
	r := newTestRadio(t, []uint8{0})
	if err := r.SetCountry(context.Background(), "US", model.PendingUser); !errors.Is(err, model.ErrNoRulesFound) {
		t.Fatalf("err = %v, want ErrNoRulesFound", err)
	}
}

func TestResetRadioDisablesEverything(t *testing.T) {
	r := newTestRadio(t, []uint8{0})
	mustProcess(t, r, usRuleSet(0))
	if err := r.ResetRadio(context.Background(), 0); err != nil {
		t.Fatalf("ResetRadio: %v", err)
	}
	for i, ch := range mustEngine(t, r, 0).Current() {
		if !ch.IsDisabled() {
			t.Fatalf("channel %d usable after reset", i)
		}
	}
	if r.Rules().Active(0) != nil {
		t.Fatalf("rule set still cached")
	}
	if err := r.ResetRadio(context.Background(), 0); err != nil {
		t.Fatalf("second ResetRadio: %v", err)
	}
}

func TestRecomputeAllIsIdempotent(t *testing.T) {
	metrics := newStubMetrics()
	r := newTestRadio(t, []uint8{0, 1}, WithMetricsRecorder(metrics))
	mustProcess(t, r, usRuleSet(0))
	mustProcess(t, r, usRuleSet(1))

	var mu sync.Mutex
	seen := map[uint8]int{}
	if _, _, err := r.Subscribe(func(ev ListChanged) {
		if ev.Trigger != TriggerManual {
			return
		}
		mu.Lock()
		seen[ev.PhyID]++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	before := []model.ChannelList{mustEngine(t, r, 0).Current(), mustEngine(t, r, 1).Current()}
	if err := r.RecomputeAll(context.Background(), TriggerManual); err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	for i, phy := range []uint8{0, 1} {
		if diff := cmp.Diff(before[i], mustEngine(t, r, phy).Current()); diff != "" {
			t.Fatalf("radio %d changed on recompute (-want +got):\n%s", phy, diff)
		}
	}

	r.Close()
	mu.Lock()
	defer mu.Unlock()
	if seen[0] != 1 || seen[1] != 1 {
		t.Fatalf("manual notifications %v", seen)
	}
	if got := metrics.triggers(1); got[len(got)-1] != string(TriggerManual) {
		t.Fatalf("radio 1 triggers %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.RecomputeAll(ctx, TriggerManual); !errors.Is(err, context.Canceled) {
		t.Fatalf("RecomputeAll on cancelled ctx = %v", err)
	}
}

type recordingScanner struct {
	mu     sync.Mutex
	starts []uint8
}

func (s *recordingScanner) Start11dScan(_ context.Context, vdev uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, vdev)
	return nil
}

func (s *recordingScanner) Stop11dScan(context.Context, uint8) error { return nil }

func TestVdevEventsDrive11d(t *testing.T) {
	sc := &recordingScanner{}
	r := newTestRadio(t, []uint8{0}, WithScanCommander(sc))
	ctx := context.Background()
	if err := r.VdevCreated(ctx, 4, model.VdevSTA); err != nil {
		t.Fatalf("VdevCreated: %v", err)
	}
	if !slices.Equal(sc.starts, []uint8{4}) {
		t.Fatalf("scan starts %v", sc.starts)
	}
	if err := r.VdevDeleted(ctx, 4); err != nil {
		t.Fatalf("VdevDeleted: %v", err)
	}
	if _, ok := r.CountryMachine().ScanVdev(); ok {
		t.Fatalf("scan vdev still tracked")
	}
}

func TestSubscriberCanReadEngineDuringTriggers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueDepth = 1
	r, err := NewRadioConfig(cfg, []uint8{0})
	if err != nil {
		t.Fatalf("NewRadioConfig: %v", err)
	}
	defer r.Close()
	mustProcess(t, r, usRuleSet(0))
	e := mustEngine(t, r, 0)

	var mu sync.Mutex
	var seen []bool
	if _, _, err := r.Subscribe(func(ListChanged) {
		time.Sleep(5 * time.Millisecond)
		p := e.Policy()
		mu.Lock()
		seen = append(seen, p.DFSEnabled)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			p := model.DefaultPolicy()
			p.DFSEnabled = i%2 == 0
			e.SetPolicy(context.Background(), p)
		}
	}()
	receive(t, done)

	r.Close()
	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || len(seen) > 21 {
		t.Fatalf("subscriber ran %d times", len(seen))
	}
	if e.Policy().DFSEnabled {
		t.Fatalf("last policy not applied")
	}
}

func TestSetCountryFailingOnOneRadioChangesNothing(t *testing.T) {
	src := newMapRuleSource()
	src.sets["XX"] = func(phy uint8) *model.RuleSet {
		rs := usRuleSet(phy)
		rs.Alpha2 = "XX"
		if phy == 1 {
			rs.DomainPairID = 0x7777
		}
		return rs
	}
	r := newTestRadio(t, []uint8{0, 1}, WithRuleSource(src))
	ctx := context.Background()
	if err := r.SetCountry(ctx, "DE", model.PendingUser); err != nil {
		t.Fatalf("SetCountry(DE): %v", err)
	}
	before := mustEngine(t, r, 0).Current()
	stateBefore := r.Country()

	if err := r.SetCountry(ctx, "XX", model.PendingUser); !errors.Is(err, model.ErrNoRulesFound) {
		t.Fatalf("SetCountry(XX) err = %v, want ErrNoRulesFound", err)
	}
	if diff := cmp.Diff(before, mustEngine(t, r, 0).Current()); diff != "" {
		t.Fatalf("failed change touched radio 0 (-want +got):\n%s", diff)
	}
	if got := r.Country(); got != stateBefore {
		t.Fatalf("country state %+v, want %+v", got, stateBefore)
	}
	for _, phy := range r.Phys() {
		if got := r.CountryMachine().Pending(phy); got != model.PendingNone {
			t.Fatalf("radio %d still pending %s", phy, got)
		}
		if rs := r.Rules().Active(phy); rs == nil || rs.Alpha2 != "DE" {
			t.Fatalf("radio %d active rules %+v", phy, rs)
		}
	}
}

func TestExpireDueAFCFollowsRadioClock(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timectrl.NewManualClock(t0)
	r := newTestRadio(t, []uint8{0}, WithClock(clock))
	ctx := context.Background()
	mustProcess(t, r, usRuleSet(0))
	if err := r.UpdatePolicy(ctx, 0, func(p *model.Policy) { p.AP6GPowerType = model.APTypeSP }); err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	if _, err := r.ProcessAFCEvent(ctx, 0, afcEvent(t0.Add(time.Hour))); err != nil {
		t.Fatalf("ProcessAFCEvent: %v", err)
	}

	var expired [][]uint8
	clock.AddListener(func(time.Time) {
		expired = append(expired, r.ExpireDueAFC(ctx))
	})
	clock.Advance(30 * time.Minute)
	clock.Advance(time.Hour)

	if len(expired) != 2 || len(expired[0]) != 0 || !slices.Equal(expired[1], []uint8{0}) {
		t.Fatalf("expired per tick = %v, want [[] [0]]", expired)
	}
	if st, _ := mustEngine(t, r, 0).AFCState(); st != model.AFCNoData {
		t.Fatalf("AFC state after expiry = %s", st)
	}
}
