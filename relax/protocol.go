/*
 * protocol.go, part of postfold.
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

package relax

// Protocol holds the options of a relax trajectory. Each engine uses the
// ones it understands and ignores the rest.
type Protocol struct {
	ConstrainToStart  bool     `mapstructure:"constrain_to_start" yaml:"constrain_to_start"`
	Ex1               bool     `mapstructure:"ex1" yaml:"ex1"`
	Ex2               bool     `mapstructure:"ex2" yaml:"ex2"`
	UseInputSC        bool     `mapstructure:"use_input_sc" yaml:"use_input_sc"`
	DetectDisulf      bool     `mapstructure:"detect_disulf" yaml:"detect_disulf"`
	DisulfTolerance   float64  `mapstructure:"detect_disulf_tolerance" yaml:"detect_disulf_tolerance"`
	PreserveCrystInfo bool     `mapstructure:"preserve_crystinfo" yaml:"preserve_crystinfo"`
	Mute              bool     `mapstructure:"mute" yaml:"mute"`
	Repeats           int      `mapstructure:"repeats" yaml:"repeats"`               // 0 for the engine default
	ScoreFunction     string   `mapstructure:"score_function" yaml:"score_function"` // "" for the engine default
	Perturb           float64  `mapstructure:"perturb" yaml:"perturb"`               // Å, gaussian noise on the start
	MaxIterations     int      `mapstructure:"max_iterations" yaml:"max_iterations"`
	Seed              int64    `mapstructure:"-" yaml:"-"`
	Others            []string `mapstructure:"others" yaml:"others"` // passed verbatim to external engines
}

// SetDefaults sets the options used to post-process structure predictions:
// side chains are repacked with extra rotamers, starting side chains are
// kept as candidates, disulfides are detected and the backbone is kept
// close to the starting coordinates.
func (P *Protocol) SetDefaults() {
	P.ConstrainToStart = true
	P.Ex1 = true
	P.Ex2 = true
	P.UseInputSC = true
	P.DetectDisulf = true
	P.DisulfTolerance = 3.5
	P.PreserveCrystInfo = true
	P.Mute = true
}

// Copy returns a copy of P that shares nothing with it.
func (P *Protocol) Copy() *Protocol {
	r := *P
	r.Others = append([]string(nil), P.Others...)
	return &r
}
