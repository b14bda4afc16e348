package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/regchan/model"
)

func TestComputeDefaultPolicy(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	out := compute(t, m, model.DefaultPolicy())

	if got := out.Current[idxCh36]; got.State != model.StateEnable || got.MaxBW != 160 {
		t.Fatalf("ch36 = %s/%d, want enable/160", got.State, got.MaxBW)
	}
	// Range2G starts at 2402 so channel 1 cannot keep 40MHz.
	if got := out.Current[idxCh1]; got.MaxBW != 20 {
		t.Fatalf("ch1 max_bw = %d, want 20", got.MaxBW)
	}
	if got := out.Current[idx6GCh1]; got.State != model.StateEnable {
		t.Fatalf("6GHz ch1 = %s, want enable from the LPI list", got.State)
	}
	if got := out.Current[idx6GCh2]; got.State != model.StateDisable {
		t.Fatalf("lower 6GHz edge = %s, want disable by default", got.State)
	}
	if got := out.Current[idx6GCh233]; got.State != model.StateEnable || got.MaxBW != 20 {
		t.Fatalf("upper 6GHz edge = %s/%d, want enable/20", got.State, got.MaxBW)
	}
	if diff := cmp.Diff(out.Current, out.Secondary); diff != "" {
		t.Fatalf("secondary differs from current (-cur +sec):\n%s", diff)
	}
}

func TestComputeNilMaster(t *testing.T) {
	out := Compute(PipelineInput{Policy: model.DefaultPolicy()})
	if len(out.Current) != NumChannels || len(out.Secondary) != NumChannels {
		t.Fatalf("expected full-length lists, got %d/%d", len(out.Current), len(out.Secondary))
	}
	for i := range out.Current {
		if !out.Current[i].IsDisabled() {
			t.Fatalf("channel %d usable without a master list", i)
		}
	}
}

func TestComputeDoesNotMutateMaster(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	before := m.Clone()

	p := model.DefaultPolicy()
	p.DFSEnabled = false
	p.MaxChWidth = 20
	compute(t, m, p)

	if diff := cmp.Diff(before.Master, m.Master); diff != "" {
		t.Fatalf("master mutated (-want +got):\n%s", diff)
	}
}

func busyPolicy() model.Policy {
	p := model.DefaultPolicy()
	p.DFSEnabled = false
	p.IndoorChanEnabled = false
	p.FCCConstraint = true
	p.Chan144Enabled = false
	p.UNIIDisable = model.UNII1
	p.MaxChWidth = 80
	p.CachedDisable = []uint16{5785}
	p.AvoidFreqs = []model.FreqRange{{Low: 5755, High: 5775}, {Low: 2440, High: 2445}}
	p.Upper6GEdgeEnabled = false
	return p
}

func TestModifiersAreIdempotent(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := busyPolicy()
	out := compute(t, m, p)

	again := out.Current.Clone()
	env := &Env{Policy: p, Domain: fccPair, Table: m.Table}
	for _, mod := range Modifiers() {
		mod.Apply(again, env)
	}
	ApplyAvoidFreqs(again, p.AvoidFreqs)

	if diff := cmp.Diff(out.Current, again); diff != "" {
		t.Fatalf("second pass changed the list (-first +second):\n%s", diff)
	}
}

func TestComputeOnlyNarrows(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	merged := m.Master.Clone()
	m.SixGHz().Merge(merged, m, model.APTypeLPI, nil)

	out := compute(t, m, busyPolicy())
	for i := range merged {
		if merged[i].IsDisabled() && !out.Current[i].IsDisabled() {
			t.Fatalf("channel %d enabled by the pipeline", i)
		}
		if out.Current[i].MaxBW > merged[i].MaxBW {
			t.Fatalf("channel %d widened from %d to %d", i, merged[i].MaxBW, out.Current[i].MaxBW)
		}
	}
}

func TestStateMatchesPassiveFlags(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	for _, p := range []model.Policy{model.DefaultPolicy(), busyPolicy()} {
		out := compute(t, m, p)
		for i, ch := range out.Current {
			switch ch.State {
			case model.StateDFS:
				if !ch.IsPassive() {
					t.Fatalf("channel %d in dfs without passive flags: %s", i, ch.Flags)
				}
			case model.StateEnable:
				if ch.IsPassive() {
					t.Fatalf("channel %d enabled with passive flags: %s", i, ch.Flags)
				}
			}
		}
	}
}

func TestDFSDisabled(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := model.DefaultPolicy()
	p.DFSEnabled = false
	out := compute(t, m, p)

	if !out.Current[idxCh52].IsDisabled() || !out.Current[idxCh100].IsDisabled() {
		t.Fatalf("radar channels should be disabled when DFS is off")
	}
	if out.Current[idxCh36].IsDisabled() {
		t.Fatalf("non-radar channel disabled")
	}
}

func TestNOLChannelsDisabled(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	if err := m.MarkNOL(5260, true); err != nil {
		t.Fatalf("MarkNOL: %v", err)
	}
	out := compute(t, m, model.DefaultPolicy())
	if !out.Current[idxCh52].IsDisabled() || !out.Current[idxCh52].NOL {
		t.Fatalf("NOL channel = %+v", out.Current[idxCh52])
	}

	if err := m.MarkNOL(5260, false); err != nil {
		t.Fatalf("MarkNOL: %v", err)
	}
	out = compute(t, m, model.DefaultPolicy())
	if out.Current[idxCh52].State != model.StateDFS {
		t.Fatalf("cleared NOL channel = %s, want dfs", out.Current[idxCh52].State)
	}
}

func TestIndoorChannels(t *testing.T) {
	rs := fccRuleSet()
	rs.Rules5G[0].Flags = model.FlagIndoorOnly
	m := mustBuild(t, rs)

	p := model.DefaultPolicy()
	p.IndoorChanEnabled = false
	out := compute(t, m, p)
	if got := out.Current[idxCh36]; got.State != model.StateDFS || got.Flags&model.FlagNoIR == 0 {
		t.Fatalf("indoor ch36 = %s/%s, want passive", got.State, got.Flags)
	}

	p.ForceSCCDisableIndoor = true
	p.APActive = true
	out = compute(t, m, p)
	if !out.Current[idxCh36].IsDisabled() {
		t.Fatalf("indoor channel should be disabled with an active AP")
	}
	if out.Current[idxCh149].IsDisabled() {
		t.Fatalf("outdoor channel disabled")
	}
}

func TestFCCConstraintCapsPower(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := model.DefaultPolicy()
	p.FCCConstraint = true
	out := compute(t, m, p)

	if got := out.Current[idxCh12].TxPower; got != MaxPowerFCCChan12 {
		t.Fatalf("ch12 tx = %d, want %d", got, MaxPowerFCCChan12)
	}
	if got := out.Current[idxCh13].TxPower; got != MaxPowerFCCChan13 {
		t.Fatalf("ch13 tx = %d, want %d", got, MaxPowerFCCChan13)
	}
	if got := out.Current[idxCh1].TxPower; got != 30 {
		t.Fatalf("ch1 tx = %d, want 30", got)
	}
}

func TestChan144AndCachedDisable(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := model.DefaultPolicy()
	p.Chan144Enabled = false
	p.CachedDisable = []uint16{5180, 9999}
	out := compute(t, m, p)

	if !out.Current[idxCh144].IsDisabled() {
		t.Fatalf("ch144 should be disabled")
	}
	if !out.Current[idxCh36].IsDisabled() {
		t.Fatalf("cached disable of 5180 ignored")
	}
}

func TestUNIIDisable(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := model.DefaultPolicy()
	p.UNIIDisable = model.UNII1
	out := compute(t, m, p)

	for i := idxCh36; i < idxCh52; i++ {
		if !out.Current[i].IsDisabled() {
			t.Fatalf("UNII-1 channel %d still usable", out.Current[i].ChanNum)
		}
	}
	if out.Current[idxCh52].IsDisabled() {
		t.Fatalf("UNII-2A channel disabled by the UNII-1 mask")
	}

	p.UNIIDisable = model.UNII1 | model.UNII2A
	out = compute(t, m, p)
	if !out.Current[idxCh52].IsDisabled() {
		t.Fatalf("UNII-2A channel still usable")
	}
}

func TestSRDChannelsPassiveInETSI13(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	etsi13, err := LookupDomainPair(0x0082)
	if err != nil {
		t.Fatalf("LookupDomainPair: %v", err)
	}

	out := Compute(PipelineInput{Master: m, Policy: model.DefaultPolicy(), Domain: etsi13})
	for _, i := range []int{idxCh149, idxCh165} {
		if got := out.Current[i]; got.State != model.StateDFS {
			t.Fatalf("SRD channel %d = %s, want dfs", got.ChanNum, got.State)
		}
	}

	p := model.DefaultPolicy()
	p.SRDMasterMode = true
	out = Compute(PipelineInput{Master: m, Policy: p, Domain: etsi13})
	if got := out.Current[idxCh149]; got.State != model.StateEnable {
		t.Fatalf("SRD master mode should leave ch149 enabled, got %s", got.State)
	}
}

func TestFiveDotNineGHz(t *testing.T) {
	m := mustBuild(t, fccRuleSet())

	cases := []struct {
		name      string
		supported bool
		master    bool
		want      model.ChannelState
	}{
		{"unsupported", false, false, model.StateDisable},
		{"client only", true, false, model.StateDFS},
		{"master", true, true, model.StateEnable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := model.DefaultPolicy()
			p.FiveDotNineSupported = tc.supported
			p.FiveDotNineMasterMode = tc.master
			out := compute(t, m, p)
			if got := out.Current[idxCh169].State; got != tc.want {
				t.Fatalf("ch169 = %s, want %s", got, tc.want)
			}
			if got := out.Current[idxCh165].State; got != model.StateEnable {
				t.Fatalf("ch165 = %s, want enable", got)
			}
		})
	}

	// Outside the FCC family the 5.9GHz gate does not apply.
	p := model.DefaultPolicy()
	p.FiveDotNineSupported = false
	out := Compute(PipelineInput{Master: m, Policy: p, Domain: domainPairs[0]})
	if out.Current[idxCh169].IsDisabled() {
		t.Fatalf("5.9GHz gate applied in the world domain")
	}
}

func TestMaxChWidthAndBandCapability(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := model.DefaultPolicy()
	p.MaxChWidth = 40
	out := compute(t, m, p)
	if got := out.Current[idxCh36].MaxBW; got != 40 {
		t.Fatalf("ch36 max_bw = %d, want 40", got)
	}

	p = model.DefaultPolicy()
	p.BandCapability = model.MaskOf(model.Band2G)
	out = compute(t, m, p)
	if !out.Current[idxCh36].IsDisabled() || !out.Current[idx6GCh1].IsDisabled() {
		t.Fatalf("channels outside the band capability still usable")
	}
	if out.Current[idxCh6].IsDisabled() {
		t.Fatalf("2.4GHz channel disabled")
	}
}

func TestFreqRangeNarrowsOrDisables(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := model.DefaultPolicy()
	p.Range5G = model.FreqRange{Low: 5150, High: 5350}
	out := compute(t, m, p)

	if got := out.Current[idxCh36].MaxBW; got != 40 {
		t.Fatalf("ch36 max_bw = %d, want 40", got)
	}
	if !out.Current[idxCh100].IsDisabled() {
		t.Fatalf("ch100 outside the 5GHz range still usable")
	}
	if !out.Current[idx6GCh1].IsDisabled() {
		t.Fatalf("6GHz channel outside the range still usable")
	}
}

func Test6GHzEdges(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := model.DefaultPolicy()
	p.Lower6GEdgeEnabled = true
	p.Upper6GEdgeEnabled = false
	out := compute(t, m, p)

	if out.Current[idx6GCh2].IsDisabled() {
		t.Fatalf("lower edge should be usable when enabled")
	}
	if !out.Current[idx6GCh233].IsDisabled() {
		t.Fatalf("upper edge should be disabled")
	}
}

func TestAPPowerTypeSelectsList(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	p := model.DefaultPolicy()
	p.AP6GPowerType = model.APTypeSP
	out := compute(t, m, p)
	if got := out.Current[idx6GCh1].TxPower; got != 10 {
		t.Fatalf("SP ch1 tx = %d, want 10", got)
	}

	p.AP6GPowerType = model.APTypeVLP
	out = compute(t, m, p)
	if !out.Current[idx6GCh1].IsDisabled() {
		t.Fatalf("VLP has no rules and should leave 6GHz disabled")
	}
}
