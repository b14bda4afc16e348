package regstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	"github.com/signalsfoundry/regchan/core"
	"github.com/signalsfoundry/regchan/internal/country"
)

// ErrInvalidConfig indicates a Config failed validation.
var ErrInvalidConfig = errors.New("invalid regulatory engine config")

var configValidate = validator.New()

// Config controls how RadioConfig builds and runs its engines.
type Config struct {
	// MinBW2G..MinBW6G are the smallest bandwidths negotiation may settle
	// on, in MHz.
	MinBW2G uint16 `mapstructure:"min_bw_2g" yaml:"min_bw_2g" validate:"oneof=5 10 20"`
	MinBW5G uint16 `mapstructure:"min_bw_5g" yaml:"min_bw_5g" validate:"oneof=5 10 20"`
	MinBW6G uint16 `mapstructure:"min_bw_6g" yaml:"min_bw_6g" validate:"oneof=20"`

	AutoBWCorrection bool `mapstructure:"auto_bw_correction" yaml:"auto_bw_correction"`

	// Enable6G and EnableAFC select the capability implementations once,
	// at construction.
	Enable6G  bool `mapstructure:"enable_6g" yaml:"enable_6g"`
	EnableAFC bool `mapstructure:"enable_afc" yaml:"enable_afc"`

	Country country.Config `mapstructure:"country" yaml:"country"`

	// MaxSubscribers bounds the north-bound subscriber set.
	MaxSubscribers int `mapstructure:"max_subscribers" yaml:"max_subscribers" validate:"gte=1,lte=64"`
	// QueueDepth bounds the radio and kind keys pending on each notification
	// queue. Each key holds only its newest item.
	QueueDepth int `mapstructure:"queue_depth" yaml:"queue_depth" validate:"gte=1,lte=4096"`

	// AFCCheckInterval is how often long-running processes look for
	// expired AFC grants. Zero disables the check.
	AFCCheckInterval time.Duration `mapstructure:"afc_check_interval" yaml:"afc_check_interval" validate:"gte=0"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MinBW2G:          core.DefaultMinBW2G,
		MinBW5G:          core.DefaultMinBW5G,
		MinBW6G:          core.DefaultMinBW6G,
		AutoBWCorrection: true,
		Enable6G:         true,
		EnableAFC:        true,
		Country:          country.Config{Enable11d: true},
		MaxSubscribers:   8,
		QueueDepth:       64,
		AFCCheckInterval: 30 * time.Second,
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs error
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s fails %s=%s (got %v)",
				ErrInvalidConfig, fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	if c.EnableAFC && !c.Enable6G {
		errs = multierr.Append(errs, fmt.Errorf("%w: AFC requires 6GHz support", ErrInvalidConfig))
	}
	return errs
}

// BuildConfig projects the negotiation settings for the master builder.
func (c Config) BuildConfig() core.BuildConfig {
	return core.BuildConfig{
		MinBW2G:          c.MinBW2G,
		MinBW5G:          c.MinBW5G,
		MinBW6G:          c.MinBW6G,
		AutoBWCorrection: c.AutoBWCorrection,
	}
}
