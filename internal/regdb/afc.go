package regdb

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/regchan/core"
	"github.com/signalsfoundry/regchan/model"
)

// LoadAFCEventFile reads a recorded AFC server response from path.
func LoadAFCEventFile(path string) (*model.AFCPowerEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadAFCEvent(f)
}

// LoadAFCEvent parses an AFC power event. Frequency objects must lie in
// the 6GHz band and channel objects must name 6GHz operating classes.
func LoadAFCEvent(r io.Reader) (*model.AFCPowerEvent, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var ev model.AFCPowerEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: afc event: %v", ErrInvalidDatabase, err)
	}

	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: afc event: %s", ErrInvalidDatabase, fmt.Sprintf(format, args...)))
	}
	band := bandLimits[model.Band6G]
	for i, fo := range ev.FreqObjs {
		if fo.LowFreq >= fo.HighFreq {
			fail("freq_objs[%d] low_freq %d not below high_freq %d", i, fo.LowFreq, fo.HighFreq)
		}
		if !band.Contains(fo.LowFreq) || !band.Contains(fo.HighFreq) {
			fail("freq_objs[%d] outside the 6GHz band", i)
		}
	}
	for i, co := range ev.ChanObjs {
		oc, ok := core.GlobalOpClass(co.OpClass)
		if !ok || oc.Band() != model.Band6G {
			fail("chan_objs[%d] op_class %d is not a 6GHz class", i, co.OpClass)
			continue
		}
		for _, cfi := range co.CFIs {
			if _, err := core.SubChannels(co.OpClass, cfi.CFI); err != nil {
				fail("chan_objs[%d]: %v", i, err)
			}
		}
	}
	if errs != nil {
		return nil, errs
	}
	return &ev, nil
}
