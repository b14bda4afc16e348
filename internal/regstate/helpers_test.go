package regstate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/regchan/core"
	"github.com/signalsfoundry/regchan/model"
)

// Enumeration indices used by the tests.
const (
	idxCh36  = 18
	idxCh52  = 22
	idxCh100 = 26
	idxCh149 = 38
	idxCh153 = 39
	idx6GCh1 = core.Min6GHzChannel + 1
)

func usRuleSet(phy uint8) *model.RuleSet {
	rs := &model.RuleSet{
		PhyID:        phy,
		Alpha2:       "US",
		DFSRegion:    model.DFSRegionFCC,
		DomainPairID: 0x003A,
		Rules2G: []model.RegulatoryRule{
			{StartFreq: 2402, EndFreq: 2482, MaxBW: 40, RegPower: 30},
		},
		Rules5G: []model.RegulatoryRule{
			{StartFreq: 5170, EndFreq: 5250, MaxBW: 80, RegPower: 24},
			{StartFreq: 5250, EndFreq: 5330, MaxBW: 80, RegPower: 24, Flags: model.FlagRadar},
			{StartFreq: 5490, EndFreq: 5730, MaxBW: 160, RegPower: 24, Flags: model.FlagRadar},
			{StartFreq: 5735, EndFreq: 5895, MaxBW: 80, RegPower: 30},
		},
	}
	rs.Rules6GAP[model.APTypeLPI] = []model.RegulatoryRule{
		{StartFreq: 5925, EndFreq: 7125, MaxBW: 160, RegPower: 24, PSDFlag: true, PSDEIRP: 5},
	}
	rs.Rules6GAP[model.APTypeSP] = []model.RegulatoryRule{
		{StartFreq: 5925, EndFreq: 7125, MaxBW: 160, RegPower: 10, PSDFlag: true, PSDEIRP: 5},
	}
	return rs
}

func deRuleSet(phy uint8) *model.RuleSet {
	return &model.RuleSet{
		PhyID:        phy,
		Alpha2:       "DE",
		DFSRegion:    model.DFSRegionETSI,
		DomainPairID: 0x0037,
		Rules2G: []model.RegulatoryRule{
			{StartFreq: 2402, EndFreq: 2482, MaxBW: 40, RegPower: 20},
		},
		Rules5G: []model.RegulatoryRule{
			{StartFreq: 5170, EndFreq: 5250, MaxBW: 80, RegPower: 23},
			{StartFreq: 5250, EndFreq: 5330, MaxBW: 80, RegPower: 20, Flags: model.FlagRadar},
			{StartFreq: 5490, EndFreq: 5710, MaxBW: 160, RegPower: 27, Flags: model.FlagRadar},
		},
	}
}

// mapRuleSource serves rule sets by country and counts lookups.
type mapRuleSource struct {
	mu    sync.Mutex
	sets  map[string]func(uint8) *model.RuleSet
	calls int
}

func newMapRuleSource() *mapRuleSource {
	return &mapRuleSource{sets: map[string]func(uint8) *model.RuleSet{
		"US": usRuleSet,
		"DE": deRuleSet,
	}}
}

func (s *mapRuleSource) RuleSet(_ context.Context, phy uint8, alpha2 string) (*model.RuleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	fn, ok := s.sets[alpha2]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNoRulesFound, alpha2)
	}
	return fn(phy), nil
}

func (s *mapRuleSource) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []SouthMessage
	fail error
}

func (s *recordingSender) Deliver(_ context.Context, msg SouthMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) byKind(kind SouthKind) []SouthMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SouthMessage
	for _, m := range s.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type recomputeRecord struct {
	phy     uint8
	trigger string
}

type stubMetrics struct {
	mu         sync.Mutex
	recomputes []recomputeRecord
	nol        map[uint8]int
	afc        map[string]int
	country    map[model.CountrySource]int
	counts     map[uint8]map[model.ChannelState]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{
		nol:     make(map[uint8]int),
		afc:     make(map[string]int),
		country: make(map[model.CountrySource]int),
		counts:  make(map[uint8]map[model.ChannelState]int),
	}
}

func (m *stubMetrics) ObserveRecompute(phy uint8, trigger string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recomputes = append(m.recomputes, recomputeRecord{phy: phy, trigger: trigger})
}

func (m *stubMetrics) SetChannelCounts(phy uint8, counts map[model.ChannelState]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[phy] = counts
}

func (m *stubMetrics) SetNOLCount(phy uint8, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nol[phy] = n
}

func (m *stubMetrics) IncAFCEvent(_ uint8, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afc[outcome]++
}

func (m *stubMetrics) IncCountryChange(source model.CountrySource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.country[source]++
}

func (m *stubMetrics) triggers(phy uint8) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.recomputes {
		if r.phy == phy {
			out = append(out, r.trigger)
		}
	}
	return out
}

func newTestRadio(t *testing.T, phys []uint8, opts ...Option) *RadioConfig {
	t.Helper()
	r, err := NewRadioConfig(DefaultConfig(), phys, opts...)
	if err != nil {
		t.Fatalf("NewRadioConfig: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func mustEngine(t *testing.T, r *RadioConfig, phy uint8) *ChannelEngine {
	t.Helper()
	e, err := r.Engine(phy)
	if err != nil {
		t.Fatalf("Engine(%d): %v", phy, err)
	}
	return e
}

func mustProcess(t *testing.T, r *RadioConfig, rs *model.RuleSet) {
	t.Helper()
	if err := r.ProcessRuleSet(context.Background(), rs); err != nil {
		t.Fatalf("ProcessRuleSet(%s): %v", rs.Alpha2, err)
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
	var zero T
	return zero
}
