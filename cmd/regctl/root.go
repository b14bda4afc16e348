package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/regchan/internal/logging"
	"github.com/signalsfoundry/regchan/internal/observability"
	"github.com/signalsfoundry/regchan/internal/regdb"
	"github.com/signalsfoundry/regchan/internal/regstate"
	"github.com/signalsfoundry/regchan/model"
)

// appConfig is everything regctl reads from flags, REG_* environment
// variables and the optional config file, in increasing precedence from
// file to flag.
type appConfig struct {
	DB          string `mapstructure:"db"`
	Policy      string `mapstructure:"policy"`
	Country     string `mapstructure:"country" validate:"len=2"`
	Radios      int    `mapstructure:"radios" validate:"gte=1,lte=8"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format" validate:"omitempty,oneof=text json"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	Engine  regstate.Config             `mapstructure:"engine"`
	Tracing observability.TracingConfig `mapstructure:"tracing"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Country:     "US",
		Radios:      1,
		LogLevel:    "info",
		MetricsAddr: ":9090",
		Engine:      regstate.DefaultConfig(),
		Tracing:     observability.TracingConfigFromEnv(),
	}
}

type app struct {
	v   *viper.Viper
	cfg appConfig
	log logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: logging.Noop()}

	root := &cobra.Command{
		Use:          "regctl",
		Short:        "Compute and inspect regulatory channel lists",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("db", "", "regulatory rule database (YAML)")
	flags.String("policy", "", "device policy (YAML); defaults apply when empty")
	flags.String("country", "US", "country code to apply on every radio")
	flags.Int("radios", 1, "number of radios, numbered from 0")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "text", "text or json")

	a.bind(flags.Lookup("config"), "config")
	a.bind(flags.Lookup("db"), "db")
	a.bind(flags.Lookup("policy"), "policy")
	a.bind(flags.Lookup("country"), "country")
	a.bind(flags.Lookup("radios"), "radios")
	a.bind(flags.Lookup("log-level"), "log_level")
	a.bind(flags.Lookup("log-format"), "log_format")

	a.v.SetEnvPrefix("REG")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.channelsCmd(),
		a.masterCmd(),
		a.opclassCmd(),
		a.ctlCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) bind(f *pflag.Flag, key string) {
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

var appValidate = validator.New()

// load resolves the configuration and the logger.
func (a *app) load(cmd *cobra.Command) error {
	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := a.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	cfg.Country = model.NormalizeAlpha2(cfg.Country)
	if err := appValidate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: fails %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
		}
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

// buildRadio loads the database and policy, constructs the radios and
// applies the configured country and policy to all of them.
func (a *app) buildRadio(ctx context.Context, opts ...regstate.Option) (*regstate.RadioConfig, error) {
	if a.cfg.DB == "" {
		return nil, errors.New("no rule database: set --db, REG_DB or db in the config file")
	}
	db, err := regdb.LoadFile(a.cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("load rule database: %w", err)
	}
	policy := model.DefaultPolicy()
	if a.cfg.Policy != "" {
		if policy, err = regdb.LoadPolicyFile(a.cfg.Policy); err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
	}

	phys := make([]uint8, a.cfg.Radios)
	for i := range phys {
		phys[i] = uint8(i)
	}
	opts = append([]regstate.Option{
		regstate.WithRuleSource(db),
		regstate.WithLogger(a.log),
	}, opts...)
	r, err := regstate.NewRadioConfig(a.cfg.Engine, phys, opts...)
	if err != nil {
		return nil, err
	}

	if err := r.SetCountry(ctx, a.cfg.Country, model.PendingUser); err != nil {
		r.Close()
		return nil, fmt.Errorf("set country %s: %w", a.cfg.Country, err)
	}
	for _, phy := range r.Phys() {
		if err := r.SetPolicy(ctx, phy, policy); err != nil {
			r.Close()
			return nil, err
		}
	}
	a.log.Info(ctx, "radios ready",
		logging.String("country", a.cfg.Country),
		logging.Int("radios", len(phys)),
	)
	return r, nil
}
