package core

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/signalsfoundry/regchan/model"
)

// Per-band regulatory domain codes.
const (
	DomainWorld  model.DomainCode = 0x0199
	DomainFCCA   model.DomainCode = 0x0A10
	DomainETSIC  model.DomainCode = 0x0A30
	DomainMKKA   model.DomainCode = 0x0A40
	DomainFCC1   model.DomainCode = 0x0110
	DomainFCC3   model.DomainCode = 0x0310
	DomainFCC6   model.DomainCode = 0x0610
	DomainETSI1  model.DomainCode = 0x0130
	DomainETSI9  model.DomainCode = 0x0930
	DomainETSI13 model.DomainCode = 0x1330
	DomainMKK5   model.DomainCode = 0x0540
	DomainAPL1   model.DomainCode = 0x0150
)

// CTL groups used for conformance test limits.
const (
	CTLFCC  uint8 = 0x10
	CTLETSI uint8 = 0x30
	CTLMKK  uint8 = 0x40
	CTLNone uint8 = 0xff
)

type domainInfo struct {
	name string
	ctl  uint8
}

var domains = map[model.DomainCode]domainInfo{
	DomainWorld:  {"WORLD", CTLETSI},
	DomainFCCA:   {"FCCA", CTLFCC},
	DomainETSIC:  {"ETSIC", CTLETSI},
	DomainMKKA:   {"MKKA", CTLMKK},
	DomainFCC1:   {"FCC1", CTLFCC},
	DomainFCC3:   {"FCC3", CTLFCC},
	DomainFCC6:   {"FCC6", CTLFCC},
	DomainETSI1:  {"ETSI1", CTLETSI},
	DomainETSI9:  {"ETSI9", CTLETSI},
	DomainETSI13: {"ETSI13", CTLETSI},
	DomainMKK5:   {"MKK5", CTLMKK},
	DomainAPL1:   {"APL1", CTLFCC},
}

var domainPairs = []model.DomainPair{
	{ID: 0x0060, Domain2G: DomainWorld, Domain5G: DomainWorld},
	{ID: 0x0010, Domain2G: DomainFCCA, Domain5G: DomainFCC1},
	{ID: 0x003A, Domain2G: DomainFCCA, Domain5G: DomainFCC3},
	{ID: 0x0064, Domain2G: DomainFCCA, Domain5G: DomainFCC6},
	{ID: 0x0037, Domain2G: DomainWorld, Domain5G: DomainETSI1},
	{ID: 0x003E, Domain2G: DomainETSIC, Domain5G: DomainETSI9},
	{ID: 0x0082, Domain2G: DomainETSIC, Domain5G: DomainETSI13},
	{ID: 0x0093, Domain2G: DomainMKKA, Domain5G: DomainMKK5},
	{ID: 0x0052, Domain2G: DomainWorld, Domain5G: DomainAPL1},
}

// LookupDomainPair returns the static domain pair for id.
func LookupDomainPair(id uint16) (model.DomainPair, error) {
	for _, p := range domainPairs {
		if p.ID == id {
			return p, nil
		}
	}
	return model.DomainPair{}, fmt.Errorf("%w: domain pair 0x%04x", model.ErrLookupFailure, id)
}

// DomainName returns the printable name of a domain code.
func DomainName(d model.DomainCode) string {
	if info, ok := domains[d]; ok {
		return info.name
	}
	return fmt.Sprintf("0x%04x", uint16(d))
}

// IsETSI13 reports whether the 5GHz domain is ETSI13.
func IsETSI13(p model.DomainPair) bool {
	return p.Domain5G == DomainETSI13
}

// IsFCC reports whether the 5GHz domain belongs to the FCC family.
func IsFCC(p model.DomainPair) bool {
	return ctlOf(p.Domain5G) == CTLFCC && p.Domain5G != DomainAPL1
}

func ctlOf(d model.DomainCode) uint8 {
	if info, ok := domains[d]; ok {
		return info.ctl
	}
	return CTLNone
}

// CTLSummary is the southbound record sent when the rule source does not
// program conformance limits itself.
type CTLSummary struct {
	PairID   uint16           `cbor:"1,keyasint"`
	Domain2G model.DomainCode `cbor:"2,keyasint"`
	Domain5G model.DomainCode `cbor:"3,keyasint"`
	CTL2G    uint8            `cbor:"4,keyasint"`
	CTL5G    uint8            `cbor:"5,keyasint"`
}

// CTLSummaryFor derives the CTL summary of a domain pair.
func CTLSummaryFor(p model.DomainPair) CTLSummary {
	return CTLSummary{
		PairID:   p.ID,
		Domain2G: p.Domain2G,
		Domain5G: p.Domain5G,
		CTL2G:    ctlOf(p.Domain2G),
		CTL5G:    ctlOf(p.Domain5G),
	}
}

var ctlEncMode cbor.EncMode

func init() {
	var err error
	ctlEncMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}
}

// EncodeCTLSummary serialises a summary for southbound delivery.
func EncodeCTLSummary(s CTLSummary) ([]byte, error) {
	return ctlEncMode.Marshal(s)
}

// DecodeCTLSummary is the inverse of EncodeCTLSummary.
func DecodeCTLSummary(data []byte) (CTLSummary, error) {
	var s CTLSummary
	if err := cbor.Unmarshal(data, &s); err != nil {
		return CTLSummary{}, fmt.Errorf("decode ctl summary: %w", err)
	}
	return s, nil
}
