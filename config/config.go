/*
 * config.go, part of postfold.
 *
 * Copyright 2026 The postfold authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

// Package config loads the settings of a postfold run from defaults, an
// optional YAML file, POSTFOLD_* environment variables and command line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/postfold/postfold/chem"
	"github.com/postfold/postfold/relax"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables read.
const EnvPrefix = "POSTFOLD"

// Config holds every setting of a postfold run. It is filled from the
// defaults, the configuration file, POSTFOLD_ environment variables and
// the command line flags, in increasing order of priority.
type Config struct {
	Engine          string         `mapstructure:"engine" yaml:"engine"`
	NStruct         int            `mapstructure:"nstruct" yaml:"nstruct"`
	NProc           int            `mapstructure:"nproc" yaml:"nproc"`
	WorkDir         string         `mapstructure:"workdir" yaml:"workdir"`
	Keep            bool           `mapstructure:"keep" yaml:"keep"`
	Checkpoint      string         `mapstructure:"checkpoint" yaml:"checkpoint"`
	Seed            int64          `mapstructure:"seed" yaml:"seed"` // 0 for a seed from the clock
	ConfidenceScale float64        `mapstructure:"confidence_scale" yaml:"confidence_scale"`
	Propagate       bool           `mapstructure:"propagate" yaml:"propagate"`
	Log             LogConfig      `mapstructure:"log" yaml:"log"`
	Protocol        relax.Protocol `mapstructure:"protocol" yaml:"protocol"`
	Engines         relax.Settings `mapstructure:"engines" yaml:"engines"`
}

// LogConfig selects the level and format of the log written to stderr.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn or error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// Default returns the default configuration: 10 Rosetta trajectories on
// up to 10 processes, with confidences scaled by 100.
func Default() *Config {
	C := &Config{
		Engine:          relax.Rosetta,
		NStruct:         10,
		NProc:           10,
		ConfidenceScale: chem.DefaultConfidenceScale,
		Propagate:       true,
		Log:             LogConfig{Level: "info", Format: "text"},
	}
	C.Protocol.SetDefaults()
	C.Engines.SetDefaults()
	return C
}

// New returns a viper instance with the defaults set and reading
// POSTFOLD_* environment variables, where nested keys use underscores:
// POSTFOLD_ENGINES_XTB_BINARY sets engines.xtb.binary.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("engine", d.Engine)
	v.SetDefault("nstruct", d.NStruct)
	v.SetDefault("nproc", d.NProc)
	v.SetDefault("workdir", d.WorkDir)
	v.SetDefault("keep", d.Keep)
	v.SetDefault("checkpoint", d.Checkpoint)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("confidence_scale", d.ConfidenceScale)
	v.SetDefault("propagate", d.Propagate)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	P := d.Protocol
	v.SetDefault("protocol.constrain_to_start", P.ConstrainToStart)
	v.SetDefault("protocol.ex1", P.Ex1)
	v.SetDefault("protocol.ex2", P.Ex2)
	v.SetDefault("protocol.use_input_sc", P.UseInputSC)
	v.SetDefault("protocol.detect_disulf", P.DetectDisulf)
	v.SetDefault("protocol.detect_disulf_tolerance", P.DisulfTolerance)
	v.SetDefault("protocol.preserve_crystinfo", P.PreserveCrystInfo)
	v.SetDefault("protocol.mute", P.Mute)
	v.SetDefault("protocol.repeats", P.Repeats)
	v.SetDefault("protocol.score_function", P.ScoreFunction)
	v.SetDefault("protocol.perturb", P.Perturb)
	v.SetDefault("protocol.max_iterations", P.MaxIterations)
	v.SetDefault("protocol.others", P.Others)

	E := d.Engines
	v.SetDefault("engines.rosetta.binary", E.Rosetta.Binary)
	v.SetDefault("engines.rosetta.database", E.Rosetta.Database)
	v.SetDefault("engines.rosetta.flags", E.Rosetta.Flags)
	v.SetDefault("engines.xtb.binary", E.XTB.Binary)
	v.SetDefault("engines.xtb.method", E.XTB.Method)
	v.SetDefault("engines.xtb.ncpu", E.XTB.NCPU)
	v.SetDefault("engines.xtb.force_constant", E.XTB.ForceConstant)
	v.SetDefault("engines.xtb.solvent", E.XTB.Solvent)
	v.SetDefault("engines.xtb.perturb", E.XTB.Perturb)
	v.SetDefault("engines.native.restraint", E.Native.Restraint)
	v.SetDefault("engines.native.bond", E.Native.Bond)
	v.SetDefault("engines.native.clash", E.Native.Clash)
	v.SetDefault("engines.native.heavy_distance", E.Native.HeavyDistance)
	v.SetDefault("engines.native.h_distance", E.Native.HDistance)
	v.SetDefault("engines.native.cutoff", E.Native.Cutoff)
	v.SetDefault("engines.native.max_iterations", E.Native.MaxIterations)
	v.SetDefault("engines.native.perturb", E.Native.Perturb)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file file into v, if given, and returns the
// resulting configuration. Without a file, postfold.yaml is looked for in
// the working directory and in ~/.postfold, and it is not an error if
// there is none.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("postfold")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".postfold"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}
	var C Config
	if err := v.Unmarshal(&C); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	C.WorkDir = expandHome(C.WorkDir)
	C.Checkpoint = expandHome(C.Checkpoint)
	if err := C.Validate(); err != nil {
		return nil, err
	}
	return &C, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// ErrInvalid is returned, wrapped, for configurations that can't be run.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks the configuration.
func (C *Config) Validate() error {
	var errs []error
	if C.NStruct <= 0 {
		errs = append(errs, fmt.Errorf("%w: nstruct must be positive, got %d", ErrInvalid, C.NStruct))
	}
	if C.NProc <= 0 {
		errs = append(errs, fmt.Errorf("%w: nproc must be positive, got %d", ErrInvalid, C.NProc))
	}
	if _, err := relax.Engine(C.Engine, C.Engines); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	if C.ConfidenceScale <= 0 {
		errs = append(errs, fmt.Errorf("%w: confidence_scale must be positive, got %g", ErrInvalid, C.ConfidenceScale))
	}
	switch strings.ToLower(C.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log level %q", ErrInvalid, C.Log.Level))
	}
	switch strings.ToLower(C.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log format %q", ErrInvalid, C.Log.Format))
	}
	return errors.Join(errs...)
}
