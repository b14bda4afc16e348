package regdb

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/regchan/model"
)

// PolicyDoc is the on-disk form of a device policy. Fields left out keep
// their model.DefaultPolicy values. Bands and APPowerType, when present,
// override the numeric band_capability and ap_6g_power_type fields.
type PolicyDoc struct {
	model.Policy `yaml:",inline"`

	Bands       []string `yaml:"bands"`
	APPowerType string   `yaml:"ap_power_type"`
	UNIIDisable []string `yaml:"unii_disabled"`
}

var bandNames = map[string]model.Band{
	"2g": model.Band2G,
	"5g": model.Band5G,
	"6g": model.Band6G,
}

var uniiNames = map[string]model.UNIIMask{
	"unii-1":  model.UNII1,
	"unii-2a": model.UNII2A,
}

var channelWidths = map[uint16]bool{0: true, 20: true, 40: true, 80: true, 160: true}

// LoadPolicyFile reads a policy from path.
func LoadPolicyFile(path string) (model.Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Policy{}, err
	}
	defer f.Close()
	return LoadPolicy(f)
}

// LoadPolicy parses a policy document on top of model.DefaultPolicy and
// validates it.
func LoadPolicy(r io.Reader) (model.Policy, error) {
	doc := PolicyDoc{Policy: model.DefaultPolicy()}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return model.Policy{}, fmt.Errorf("%w: policy: %v", ErrInvalidDatabase, err)
	}
	return doc.Resolve()
}

// Resolve applies the symbolic fields and validates the result.
func (d PolicyDoc) Resolve() (model.Policy, error) {
	p := d.Policy.Clone()
	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: policy: %s", ErrInvalidDatabase, fmt.Sprintf(format, args...)))
	}

	if len(d.Bands) > 0 {
		var mask model.BandMask
		for _, name := range d.Bands {
			b, ok := bandNames[strings.ToLower(name)]
			if !ok {
				fail("unknown band %q", name)
				continue
			}
			mask |= model.MaskOf(b)
		}
		p.BandCapability = mask
	}
	if d.APPowerType != "" {
		ap, ok := apTypes[strings.ToLower(d.APPowerType)]
		if !ok {
			fail("unknown AP power type %q", d.APPowerType)
		} else {
			p.AP6GPowerType = ap
		}
	}
	for _, name := range d.UNIIDisable {
		m, ok := uniiNames[strings.ToLower(name)]
		if !ok {
			fail("unknown UNII band %q", name)
			continue
		}
		p.UNIIDisable |= m
	}

	if p.AP6GPowerType >= model.NumAPTypes {
		fail("ap_6g_power_type %d out of range", p.AP6GPowerType)
	}
	if !channelWidths[p.MaxChWidth] {
		fail("max_ch_width %d is not a channel width", p.MaxChWidth)
	}
	for name, r := range map[string]model.FreqRange{"range_2g": p.Range2G, "range_5g": p.Range5G} {
		if r.Low > r.High {
			fail("%s low %d above high %d", name, r.Low, r.High)
		}
	}
	for i, r := range p.AvoidFreqs {
		if r.Low > r.High {
			fail("avoid_freqs[%d] low %d above high %d", i, r.Low, r.High)
		}
	}
	for i, f := range p.CachedDisable {
		if _, ok := model.BandOfFreq(f); !ok {
			fail("cached_disable[%d] %d is not a channel frequency", i, f)
		}
	}
	if errs != nil {
		return model.Policy{}, errs
	}
	return p, nil
}
