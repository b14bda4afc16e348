package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/regchan/model"
)

func spPowerEvent() *model.AFCPowerEvent {
	return &model.AFCPowerEvent{
		RequestID: 7,
		Expiry:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FreqObjs:  []model.AFCFreqObj{{LowFreq: 5945, HighFreq: 5965, MaxPSD: 400}},
		ChanObjs: []model.AFCChanObj{
			{OpClass: 131, CFIs: []model.AFCCFI{{CFI: 1, MaxEIRP: 4000}}},
		},
	}
}

func TestAFCPowerIntersectsGrant(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	h := NewAFCHandler(true)
	if h.List() != nil {
		t.Fatalf("list should be nil before any event")
	}

	granted := h.ProcessPowerEvent(spPowerEvent(), m.AP6G[model.APTypeSP], m.Table)
	if granted != 1 {
		t.Fatalf("granted = %d, want 1", granted)
	}
	if h.State() != model.AFCPowerEventReceived {
		t.Fatalf("state = %s", h.State())
	}
	if !h.Expiry().Equal(spPowerEvent().Expiry) {
		t.Fatalf("expiry = %v", h.Expiry())
	}

	list := h.List()
	ch1 := list[1]
	if ch1.IsDisabled() {
		t.Fatalf("granted channel disabled")
	}
	// SP tx 10 dBm against a 40 dBm grant keeps 10.
	if ch1.TxPower != 10 {
		t.Fatalf("tx = %d, want 10", ch1.TxPower)
	}
	if !ch1.PSDFlag || ch1.PSDEIRP != 4 {
		t.Fatalf("psd = %v/%d, want true/4", ch1.PSDFlag, ch1.PSDEIRP)
	}
	if !list[2].IsDisabled() {
		t.Fatalf("channel without an EIRP grant should be disabled")
	}
}

func TestAFCBondedGrantCoversSubchannels(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	h := NewAFCHandler(true)
	ev := &model.AFCPowerEvent{
		ChanObjs: []model.AFCChanObj{
			{OpClass: 133, CFIs: []model.AFCCFI{{CFI: 7, MaxEIRP: 900}}},
		},
	}
	if got := h.ProcessPowerEvent(ev, m.AP6G[model.APTypeSP], m.Table); got != 4 {
		t.Fatalf("granted = %d, want 4 subchannels", got)
	}
	for j := 1; j <= 4; j++ {
		if got := h.List()[j].TxPower; got != 9 {
			t.Fatalf("local %d tx = %d, want 9", j, got)
		}
	}
}

func TestAFCListFeedsPipeline(t *testing.T) {
	m := mustBuild(t, fccRuleSet())
	h := NewAFCHandler(true)
	h.ProcessPowerEvent(spPowerEvent(), m.AP6G[model.APTypeSP], m.Table)

	p := model.DefaultPolicy()
	p.AP6GPowerType = model.APTypeSP
	out := Compute(PipelineInput{Master: m, AFC: h.List(), Policy: p, Domain: fccPair})
	if out.Current[idx6GCh1].IsDisabled() {
		t.Fatalf("AFC-granted channel disabled")
	}
	if !out.Current[idx6GCh5].IsDisabled() {
		t.Fatalf("channel outside the grant usable")
	}

	h.Reset()
	if h.List() != nil || h.State() != model.AFCNoData {
		t.Fatalf("reset left AFC data behind")
	}
	out = Compute(PipelineInput{Master: m, AFC: h.List(), Policy: p, Domain: fccPair})
	if out.Current[idx6GCh5].IsDisabled() {
		t.Fatalf("after reset the SP master list should apply")
	}
}

func TestDisabledAFCHandler(t *testing.T) {
	h := NewAFCHandler(false)
	if h.Enabled() {
		t.Fatalf("expected disabled handler")
	}
	if n := h.ProcessPowerEvent(spPowerEvent(), nil, TableFor(model.DFSRegionFCC)); n != 0 || h.List() != nil {
		t.Fatalf("disabled handler accepted an event")
	}
}
