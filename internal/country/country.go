// Package country arbitrates which actor's country code is in force and
// decides whether 802.11d passive scanning should run.
package country

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/signalsfoundry/regchan/internal/logging"
	"github.com/signalsfoundry/regchan/model"
)

// MaxSTAVdevs bounds the number of STA / P2P-client vdevs that can drive
// 11d scanning.
const MaxSTAVdevs = 4

// ScanCommander starts and stops 11d scans on a vdev.
type ScanCommander interface {
	Start11dScan(ctx context.Context, vdevID uint8) error
	Stop11dScan(ctx context.Context, vdevID uint8) error
}

// Config holds the operator's 11d settings.
type Config struct {
	// Enable11d is the operator default for 11d scanning.
	Enable11d bool `mapstructure:"enable_11d" yaml:"enable_11d"`
	// UserCountryPriority stops 11d once userspace has pinned a country.
	UserCountryPriority bool `mapstructure:"user_country_priority" yaml:"user_country_priority"`
	// Enable11dInWorldMode forces 11d on while the world domain is active.
	Enable11dInWorldMode bool `mapstructure:"enable_11d_in_world_mode" yaml:"enable_11d_in_world_mode"`
}

// Resolution is the outcome of applying a new master list to the country
// state.
type Resolution struct {
	PhyID     uint8
	Alpha2    string
	Source    model.CountrySource
	Pending   model.PendingSource
	Changed   bool
	Enable11d bool
}

// StateMachine holds the psoc-wide country state. It is safe for
// concurrent use.
type StateMachine struct {
	mu sync.Mutex

	cfg     Config
	state   model.CountryState
	pending map[uint8]model.PendingSource

	staVdevs    [MaxSTAVdevs]uint8
	numSTA      int
	masterVdevs map[uint8]struct{}

	enable11d   bool
	scanRunning bool
	scanVdev    uint8

	scanner ScanCommander
	log     logging.Logger
}

// Option customises StateMachine construction.
type Option func(*StateMachine)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *StateMachine) {
		s.log = logging.OrNoop(l)
	}
}

// WithScanCommander attaches the 11d scan transport.
func WithScanCommander(c ScanCommander) Option {
	return func(s *StateMachine) {
		s.scanner = c
	}
}

// NewStateMachine constructs a state machine with no country set.
func NewStateMachine(cfg Config, opts ...Option) *StateMachine {
	s := &StateMachine{
		cfg:         cfg,
		pending:     make(map[uint8]model.PendingSource),
		masterVdevs: make(map[uint8]struct{}),
		enable11d:   cfg.Enable11d,
		log:         logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// State returns a copy of the country bookkeeping.
func (s *StateMachine) State() model.CountryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enabled11d reports the effective 11d setting.
func (s *StateMachine) Enabled11d() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enable11d
}

// ScanVdev returns the vdev driving 11d scans, if any.
func (s *StateMachine) ScanVdev() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.numSTA == 0 {
		return 0, false
	}
	return s.staVdevs[0], true
}

// Pending returns the request awaiting a master list on a radio.
func (s *StateMachine) Pending(phy uint8) model.PendingSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[phy]
}

// SetPending records src as the pending request of a radio, replacing
// whatever was there.
func (s *StateMachine) SetPending(phy uint8, src model.PendingSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src == model.PendingNone {
		delete(s.pending, phy)
		return
	}
	s.pending[phy] = src
}

// ClearPending drops the pending request of a radio, used when the rule
// source has nothing for the requested country.
func (s *StateMachine) ClearPending(phy uint8) {
	s.SetPending(phy, model.PendingNone)
}

// BeginChange validates a country request from src and marks it pending on
// every listed radio. It returns the normalised country code.
func (s *StateMachine) BeginChange(alpha2 string, src model.PendingSource, phys []uint8) (string, error) {
	alpha2 = model.NormalizeAlpha2(alpha2)
	if len(alpha2) != 2 {
		return "", fmt.Errorf("%w: malformed country %q", model.ErrNoRulesFound, alpha2)
	}
	if src == model.PendingNone {
		return "", fmt.Errorf("%w: country request without a source", model.ErrInternal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if alpha2 == s.state.Current {
		repin := src == model.PendingUser && !s.state.UserSet
		if !repin {
			return "", fmt.Errorf("%w: country already %s", model.ErrNoChange, alpha2)
		}
	}
	for _, phy := range phys {
		s.pending[phy] = src
	}
	return alpha2, nil
}

// OnMasterList resolves the pending request of a radio once its master
// list for alpha2 has been built and re-runs the 11d policy.
func (s *StateMachine) OnMasterList(ctx context.Context, phy uint8, alpha2 string) (Resolution, error) {
	alpha2 = model.NormalizeAlpha2(alpha2)

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pending[phy]
	delete(s.pending, phy)

	prev := s.state
	switch pending {
	case model.PendingUser:
		s.state.Source = model.SourceUserspace
		s.state.UserSet = true
	case model.PendingInit:
		s.state.Source = model.SourceDriver
	case model.Pending11D:
		s.state.Source = model.Source11D
		s.state.UserSet = false
	case model.PendingWorld:
		s.state.Source = model.SourceCore
	default:
		if s.state.Source == model.SourceUnknown {
			s.state.Source = model.SourceDriver
		}
	}
	s.state.Current = alpha2
	if s.state.Source == model.SourceDriver {
		s.state.Default = alpha2
	}

	err := s.evaluate11dLocked(ctx)

	res := Resolution{
		PhyID:     phy,
		Alpha2:    alpha2,
		Source:    s.state.Source,
		Pending:   pending,
		Changed:   prev.Current != s.state.Current || prev.Source != s.state.Source,
		Enable11d: s.enable11d,
	}
	if res.Changed {
		s.log.Info(ctx, "country resolved",
			logging.Phy(phy),
			logging.String("alpha2", alpha2),
			logging.String("source", s.state.Source.String()),
			logging.String("pending", pending.String()),
		)
	}
	return res, err
}

// VdevCreated tracks a new vdev and re-runs the 11d policy.
func (s *StateMachine) VdevCreated(ctx context.Context, vdevID uint8, mode model.VdevMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case mode.IsScanDriver():
		if s.staIndexLocked(vdevID) >= 0 {
			break
		}
		if s.numSTA >= MaxSTAVdevs {
			return fmt.Errorf("%w: %d STA vdevs tracked", model.ErrCapacityExceeded, MaxSTAVdevs)
		}
		s.staVdevs[s.numSTA] = vdevID
		s.numSTA++
	case mode.IsMaster():
		s.masterVdevs[vdevID] = struct{}{}
	}
	return s.evaluate11dLocked(ctx)
}

// VdevDeleted forgets a vdev. When it was driving 11d the next tracked
// STA vdev takes over.
func (s *StateMachine) VdevDeleted(ctx context.Context, vdevID uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.staIndexLocked(vdevID); i >= 0 {
		copy(s.staVdevs[i:], s.staVdevs[i+1:s.numSTA])
		s.numSTA--
		s.staVdevs[s.numSTA] = 0
		if s.scanRunning && s.scanVdev == vdevID {
			// The scan dies with its vdev.
			s.scanRunning = false
		}
	}
	delete(s.masterVdevs, vdevID)
	return s.evaluate11dLocked(ctx)
}

func (s *StateMachine) staIndexLocked(vdevID uint8) int {
	for i := 0; i < s.numSTA; i++ {
		if s.staVdevs[i] == vdevID {
			return i
		}
	}
	return -1
}

func (s *StateMachine) want11dLocked() bool {
	switch {
	case s.cfg.Enable11dInWorldMode && model.IsWorld(s.state.Current):
		return true
	case s.state.UserSet && s.cfg.UserCountryPriority:
		return false
	case len(s.masterVdevs) > 0:
		return false
	default:
		return s.cfg.Enable11d
	}
}

// evaluate11dLocked recomputes the effective 11d setting and brings the
// scan in line with it.
func (s *StateMachine) evaluate11dLocked(ctx context.Context) error {
	want := s.want11dLocked()
	if want != s.enable11d {
		s.log.Info(ctx, "11d policy changed", logging.Bool("enable_11d", want))
		s.enable11d = want
	}

	var errs error
	run := s.enable11d && s.numSTA > 0
	target := s.staVdevs[0]

	if s.scanRunning && (!run || s.scanVdev != target) {
		if err := s.stopScanLocked(ctx, s.scanVdev); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if run && !s.scanRunning {
		if err := s.startScanLocked(ctx, target); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// startScanLocked records a running scan only once the scanner accepted
// it, so a failed start is retried on the next evaluation.
func (s *StateMachine) startScanLocked(ctx context.Context, vdevID uint8) error {
	if s.scanner != nil {
		if err := s.scanner.Start11dScan(ctx, vdevID); err != nil {
			s.log.Warn(ctx, "start 11d scan failed", logging.Int("vdev_id", int(vdevID)), logging.Err(err))
			return fmt.Errorf("%w: start 11d scan on vdev %d: %v", model.ErrInternal, vdevID, err)
		}
	}
	s.scanRunning = true
	s.scanVdev = vdevID
	return nil
}

func (s *StateMachine) stopScanLocked(ctx context.Context, vdevID uint8) error {
	if s.scanner != nil {
		if err := s.scanner.Stop11dScan(ctx, vdevID); err != nil {
			s.log.Warn(ctx, "stop 11d scan failed", logging.Int("vdev_id", int(vdevID)), logging.Err(err))
			return fmt.Errorf("%w: stop 11d scan on vdev %d: %v", model.ErrInternal, vdevID, err)
		}
	}
	s.scanRunning = false
	return nil
}
