package core

import (
	"testing"

	"github.com/signalsfoundry/regchan/model"
)

// Enumeration indices used throughout the tests.
const (
	idxCh1     = 0
	idxCh6     = 5
	idxCh7     = 6
	idxCh9     = 8
	idxCh10    = 9
	idxCh12    = 11
	idxCh13    = 12
	idxCh14    = 13
	idxCh36    = 18
	idxCh52    = 22
	idxCh100   = 26
	idxCh144   = 37
	idxCh149   = 38
	idxCh153   = 39
	idxCh157   = 40
	idxCh165   = 42
	idxCh169   = 43
	idx6GCh2   = Min6GHzChannel
	idx6GCh1   = Min6GHzChannel + 1
	idx6GCh5   = Min6GHzChannel + 2
	idx6GCh233 = Max6GHzChannel
)

var fccPair = model.DomainPair{ID: 0x003A, Domain2G: DomainFCCA, Domain5G: DomainFCC3}

// fccRuleSet is a US-like rule set covering every band.
func fccRuleSet() *model.RuleSet {
	rs := &model.RuleSet{
		Alpha2:       "US",
		DFSRegion:    model.DFSRegionFCC,
		DomainPairID: fccPair.ID,
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
	rs.Rules6GClient[model.APTypeLPI][model.ClientDefault] = []model.RegulatoryRule{
		{StartFreq: 5925, EndFreq: 7125, MaxBW: 160, RegPower: 18, PSDFlag: true, PSDEIRP: -1},
	}
	return rs
}

func mustBuild(t *testing.T, rs *model.RuleSet) *MasterLists {
	t.Helper()
	m, err := BuildMaster(rs, DefaultBuildConfig(), NewSixGHzSupport(true))
	if err != nil {
		t.Fatalf("BuildMaster: %v", err)
	}
	return m
}

func compute(t *testing.T, m *MasterLists, p model.Policy) PipelineOutput {
	t.Helper()
	return Compute(PipelineInput{Master: m, Policy: p, Domain: fccPair})
}
