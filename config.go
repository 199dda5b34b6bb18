package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/tradedrill/shared"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the configuration struct for the service.
type Config struct {
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// HistoricDataFilepath is the filepath to offline quotes.
	HistoricDataFilepath string
	// DBEndpoint is the rqlite endpoint.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// RefreshInterval is the interval between ticker cache refreshes.
	RefreshInterval time.Duration
	// MaxRestarts is the number of placement restarts allowed per allocation.
	MaxRestarts int
	// MaxWorkers is the maximum number of concurrent session creations.
	MaxWorkers int
	// AllocationTimeout is the deadline for placing a session's iterations.
	AllocationTimeout time.Duration
	// StockShortlist overrides the symbols classic and blitz sessions pick from.
	StockShortlist []string
	// CryptoShortlist overrides the symbols crypto sessions pick from.
	CryptoShortlist []string

	// Mode is the mode of a session to create on startup.
	Mode string
	// Once terminates the service after the startup session is created.
	Once bool
	// Symbol is the ticker symbol of a custom startup session.
	Symbol string
	// Timeframe is the timeframe of a custom startup session.
	Timeframe string
	// BarsNumber is the number of bars shown per iteration of a custom startup session.
	BarsNumber int
	// TimeLimit is the decision time limit of a custom startup session.
	TimeLimit time.Duration
	// Iterations is the number of iterations of a custom startup session.
	Iterations int
	// Slippage is the commission imitation of a custom startup session.
	Slippage string
	// FixingBar is the settlement bar offset of a custom startup session.
	FixingBar int

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.FMPAPIKey == "" && cfg.HistoricDataFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("either an fmp api key or a historic data filepath is required"))
	}
	if cfg.MaxRestarts < 0 {
		errs = errors.Join(errs, fmt.Errorf("max restarts cannot be negative"))
	}
	if cfg.MaxWorkers < 0 {
		errs = errors.Join(errs, fmt.Errorf("max workers cannot be negative"))
	}
	for _, symbol := range append(slices.Clone(cfg.StockShortlist), cfg.CryptoShortlist...) {
		if strings.TrimSpace(symbol) == "" {
			errs = errors.Join(errs, fmt.Errorf("shortlist symbols cannot be empty strings"))
			break
		}
	}
	if cfg.Once && cfg.Mode == "" {
		errs = errors.Join(errs, fmt.Errorf("once requires a session mode"))
	}
	if cfg.Mode != "" {
		_, _, err := cfg.sessionRequest()
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}

	return errs
}

// sessionRequest parses the mode and options of the startup session. Options are only
// parsed for custom sessions.
func (cfg *Config) sessionRequest() (shared.Mode, shared.Options, error) {
	mode, err := shared.ParseMode(cfg.Mode)
	if err != nil {
		return 0, shared.Options{}, err
	}

	if mode != shared.Custom {
		return mode, shared.Options{}, nil
	}

	var errs error
	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("custom sessions require a symbol"))
	}

	timeframe, err := shared.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		errs = errors.Join(errs, err)
	}

	slippage := decimal.Zero
	if cfg.Slippage != "" {
		slippage, err = decimal.NewFromString(cfg.Slippage)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("parsing slippage: %w", err))
		}
	}

	if errs != nil {
		return 0, shared.Options{}, errs
	}

	opts := shared.Options{
		Timeframe:  timeframe,
		BarsNumber: cfg.BarsNumber,
		TimeLimit:  cfg.TimeLimit,
		Iterations: cfg.Iterations,
		Slippage:   slippage,
		FixingBar:  cfg.FixingBar,
	}

	err = opts.Validate()
	if err != nil {
		return 0, shared.Options{}, err
	}

	return mode, opts, nil
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	// Durations are int64 kinds, match them by type first.
	if val.Elem().Type() == reflect.TypeOf(time.Duration(0)) {
		var def time.Duration
		if defValue != "" {
			def, _ = time.ParseDuration(defValue)
		}
		flag.DurationVar(value.(*time.Duration), name, def, usage)
		return nil
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value any
		usage string
	}{
		{"fmpapikey", &cfg.FMPAPIKey, "the FMP api key"},
		{"historicdatafilepath", &cfg.HistoricDataFilepath, "the offline quotes filepath"},
		{"dbendpoint", &cfg.DBEndpoint, "the rqlite endpoint, sessions are kept in memory when empty"},
		{"dbuser", &cfg.DBUser, "the database user"},
		{"dbpass", &cfg.DBPass, "the database user pass"},
		{"refreshinterval", &cfg.RefreshInterval, "the ticker cache refresh interval"},
		{"maxrestarts", &cfg.MaxRestarts, "the placement restarts allowed per allocation"},
		{"maxworkers", &cfg.MaxWorkers, "the maximum concurrent session creations"},
		{"allocationtimeout", &cfg.AllocationTimeout, "the iteration allocation deadline"},
		{"stockshortlist", &cfg.StockShortlist, "comma separated symbols classic and blitz sessions pick from"},
		{"cryptoshortlist", &cfg.CryptoShortlist, "comma separated symbols crypto sessions pick from"},
		{"mode", &cfg.Mode, "the mode of a session to create on startup"},
		{"once", &cfg.Once, "terminate after the startup session is created"},
		{"symbol", &cfg.Symbol, "the custom session ticker symbol"},
		{"timeframe", &cfg.Timeframe, "the custom session timeframe"},
		{"barsnumber", &cfg.BarsNumber, "the custom session bars per iteration"},
		{"timelimit", &cfg.TimeLimit, "the custom session decision time limit"},
		{"iterations", &cfg.Iterations, "the custom session iterations"},
		{"slippage", &cfg.Slippage, "the custom session slippage"},
		{"fixingbar", &cfg.FixingBar, "the custom session fixing bar"},
	}

	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
