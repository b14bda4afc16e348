// Package regdb loads regulatory rule sets and device policies from YAML
// and serves them as a rule source.
package regdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/regchan/core"
	"github.com/signalsfoundry/regchan/model"
)

// ErrInvalidDatabase indicates a rule database failed validation.
var ErrInvalidDatabase = errors.New("invalid regulatory database")

// File is the on-disk layout of a rule database.
type File struct {
	Countries []CountryDoc `yaml:"countries"`
}

// CountryDoc describes the rules of one country.
type CountryDoc struct {
	Alpha2            string    `yaml:"alpha2"`
	DFSRegion         string    `yaml:"dfs_region"`
	DomainPair        uint16    `yaml:"domain_pair"`
	SelfAuthoritative bool      `yaml:"self_authoritative"`
	PhyRestrictions   []string  `yaml:"phy_restrictions"`
	MaxBW             MaxBWDoc  `yaml:"max_bw"`
	Rules2G           []RuleDoc `yaml:"rules_2g"`
	Rules5G           []RuleDoc `yaml:"rules_5g"`
	Rules6G           SixGDoc   `yaml:"rules_6g"`
}

// MaxBWDoc carries per-band bandwidth ceilings. Zero keeps the default.
type MaxBWDoc struct {
	Band2G uint16 `yaml:"2g"`
	Band5G uint16 `yaml:"5g"`
	Band6G uint16 `yaml:"6g"`
}

// SixGDoc holds the 6GHz rules keyed by AP power type, and for clients by
// AP power type then client type.
type SixGDoc struct {
	AP     map[string][]RuleDoc            `yaml:"ap"`
	Client map[string]map[string][]RuleDoc `yaml:"client"`
}

// RuleDoc is one regulatory rule.
type RuleDoc struct {
	StartFreq uint16   `yaml:"start_freq"`
	EndFreq   uint16   `yaml:"end_freq"`
	MaxBW     uint16   `yaml:"max_bw"`
	RegPower  int16    `yaml:"reg_power"`
	AntGain   uint8    `yaml:"ant_gain"`
	Flags     []string `yaml:"flags"`
	// PSD is the power spectral density limit in dBm/MHz, if any.
	PSD *int16 `yaml:"psd"`
}

var ruleFlags = map[string]model.ChannelFlags{
	"no-ir":   model.FlagNoIR,
	"radar":   model.FlagRadar,
	"indoor":  model.FlagIndoorOnly,
	"no-ofdm": model.FlagNoOFDM,
}

var phyRestrictions = map[string]model.PhyBitmap{
	"no11a":  model.PhyNo11A,
	"no11b":  model.PhyNo11B,
	"no11g":  model.PhyNo11G,
	"no11n":  model.PhyNo11N,
	"no11ac": model.PhyNo11AC,
	"no11ax": model.PhyNo11AX,
}

var apTypes = map[string]model.APPowerType{
	"lpi": model.APTypeLPI,
	"sp":  model.APTypeSP,
	"vlp": model.APTypeVLP,
}

var clientTypes = map[string]model.ClientType{
	"default":     model.ClientDefault,
	"subordinate": model.ClientSubordinate,
}

// DB is an immutable set of rule sets keyed by country.
type DB struct {
	sets map[string]*model.RuleSet
}

// LoadFile reads a rule database from path.
func LoadFile(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a rule database. Every problem found is
// reported, not just the first.
func Load(r io.Reader) (*DB, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDatabase, err)
	}

	db := &DB{sets: make(map[string]*model.RuleSet, len(file.Countries))}
	var errs error
	for i, doc := range file.Countries {
		rs, err := doc.RuleSet()
		if err != nil {
			for _, e := range multierr.Errors(err) {
				errs = multierr.Append(errs, fmt.Errorf("countries[%d]: %w", i, e))
			}
			continue
		}
		if _, dup := db.sets[rs.Alpha2]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%w: countries[%d]: duplicate country %s", ErrInvalidDatabase, i, rs.Alpha2))
			continue
		}
		db.sets[rs.Alpha2] = rs
	}
	if errs != nil {
		return nil, errs
	}
	return db, nil
}

// RuleSet converts and validates the document.
func (d CountryDoc) RuleSet() (*model.RuleSet, error) {
	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidDatabase, d.Alpha2, fmt.Sprintf(format, args...)))
	}

	alpha2 := model.NormalizeAlpha2(d.Alpha2)
	if len(alpha2) != 2 {
		fail("country code must have two characters")
	}
	region := model.ParseDFSRegion(d.DFSRegion)
	if region == model.DFSRegionUninit && !model.IsWorld(alpha2) {
		fail("unknown dfs_region %q", d.DFSRegion)
	}
	if _, err := core.LookupDomainPair(d.DomainPair); err != nil {
		fail("%v", err)
	}

	rs := &model.RuleSet{
		Alpha2:            alpha2,
		DFSRegion:         region,
		DomainPairID:      d.DomainPair,
		SelfAuthoritative: d.SelfAuthoritative,
		MaxBW2G:           d.MaxBW.Band2G,
		MaxBW5G:           d.MaxBW.Band5G,
		MaxBW6G:           d.MaxBW.Band6G,
	}
	for _, name := range d.PhyRestrictions {
		bit, ok := phyRestrictions[strings.ToLower(name)]
		if !ok {
			fail("unknown phy restriction %q", name)
			continue
		}
		rs.PhyBitmap |= bit
	}

	var err error
	rs.Rules2G, err = convertRules("rules_2g", d.Rules2G, model.Band2G)
	errs = multierr.Append(errs, err)
	rs.Rules5G, err = convertRules("rules_5g", d.Rules5G, model.Band5G)
	errs = multierr.Append(errs, err)

	for _, name := range sortedKeys(d.Rules6G.AP) {
		ap, ok := apTypes[name]
		if !ok {
			fail("unknown AP power type %q", name)
			continue
		}
		rs.Rules6GAP[ap], err = convertRules("rules_6g.ap."+name, d.Rules6G.AP[name], model.Band6G)
		errs = multierr.Append(errs, err)
	}
	for _, name := range sortedKeys(d.Rules6G.Client) {
		ap, ok := apTypes[name]
		if !ok {
			fail("unknown AP power type %q", name)
			continue
		}
		for _, cname := range sortedKeys(d.Rules6G.Client[name]) {
			ct, ok := clientTypes[cname]
			if !ok {
				fail("unknown client type %q", cname)
				continue
			}
			path := "rules_6g.client." + name + "." + cname
			rs.Rules6GClient[ap][ct], err = convertRules(path, d.Rules6G.Client[name][cname], model.Band6G)
			errs = multierr.Append(errs, err)
		}
	}

	if err := core.CheckCapacity(rs); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", alpha2, err))
	}
	if errs == nil && rs.Empty() {
		fail("no rules")
	}
	if errs != nil {
		return nil, errs
	}
	return rs, nil
}

// bandLimits bounds rule edges per band, in MHz.
var bandLimits = map[model.Band]model.FreqRange{
	model.Band2G: {Low: 2400, High: 2500},
	model.Band5G: {Low: 4900, High: 5925},
	model.Band6G: {Low: 5925, High: 7125},
}

func convertRules(path string, docs []RuleDoc, band model.Band) ([]model.RegulatoryRule, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	limits := bandLimits[band]
	out := make([]model.RegulatoryRule, 0, len(docs))
	var errs error
	for i, doc := range docs {
		fail := func(format string, args ...any) {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s[%d]: %s", ErrInvalidDatabase, path, i, fmt.Sprintf(format, args...)))
		}
		if doc.StartFreq >= doc.EndFreq {
			fail("start_freq %d not below end_freq %d", doc.StartFreq, doc.EndFreq)
		}
		if !limits.Contains(doc.StartFreq) || !limits.Contains(doc.EndFreq) {
			fail("[%d, %d] outside the %s band", doc.StartFreq, doc.EndFreq, band)
		}
		if doc.MaxBW == 0 {
			fail("max_bw must be set")
		}
		rule := model.RegulatoryRule{
			StartFreq: doc.StartFreq,
			EndFreq:   doc.EndFreq,
			MaxBW:     doc.MaxBW,
			RegPower:  doc.RegPower,
			AntGain:   doc.AntGain,
		}
		for _, name := range doc.Flags {
			flag, ok := ruleFlags[strings.ToLower(name)]
			if !ok {
				fail("unknown flag %q", name)
				continue
			}
			rule.Flags |= flag
		}
		if doc.PSD != nil {
			rule.PSDFlag = true
			rule.PSDEIRP = *doc.PSD
		}
		out = append(out, rule)
	}
	return out, errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Countries lists the known country codes in order.
func (db *DB) Countries() []string {
	return sortedKeys(db.sets)
}

// Lookup returns a copy of the rule set for alpha2, bound to phy.
func (db *DB) Lookup(phy uint8, alpha2 string) (*model.RuleSet, error) {
	alpha2 = model.NormalizeAlpha2(alpha2)
	rs, ok := db.sets[alpha2]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNoRulesFound, alpha2)
	}
	out := rs.Clone()
	out.PhyID = phy
	return out, nil
}

// RuleSet implements the engine's rule source.
func (db *DB) RuleSet(ctx context.Context, phy uint8, alpha2 string) (*model.RuleSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return db.Lookup(phy, alpha2)
}
