/*
 * rosetta.go, part of postfold.
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

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/postfold/postfold/chem"
)

// RosettaSettings are the settings for the Rosetta relax application.
type RosettaSettings struct {
	Binary   string   `mapstructure:"binary" yaml:"binary"`
	Database string   `mapstructure:"database" yaml:"database"` // "" lets Rosetta find it
	Flags    []string `mapstructure:"flags" yaml:"flags"`
}

// SetDefaults sets the relax binary, expected in the PATH.
func (S *RosettaSettings) SetDefaults() {
	S.Binary = "relax"
}

// RosettaHandle runs one FastRelax trajectory with the Rosetta relax
// application, and reads the total score from its score file.
type RosettaHandle struct {
	settings  RosettaSettings
	inputname string
	dir       string
	args      []string
	crystal   bool
}

// NewRosettaHandle returns a handle with the settings S.
func NewRosettaHandle(S RosettaSettings) *RosettaHandle {
	run := new(RosettaHandle)
	run.settings = S
	if run.settings.Binary == "" {
		run.settings.Binary = "relax"
	}
	return run
}

func (O *RosettaHandle) SetName(name string) { O.inputname = name }

func (O *RosettaHandle) SetDir(dir string) { O.dir = dir }

func (O *RosettaHandle) path(name string) string { return filepath.Join(O.dir, name) }

// Args returns the command line built by BuildInput.
func (O *RosettaHandle) Args() []string { return O.args }

// BuildInput writes the first conformation of mol to a PDB file and builds
// the command line for a single relax trajectory with the options in P.
// The random seed of the trajectory is P.Seed.
func (O *RosettaHandle) BuildInput(mol *chem.Molecule, P *Protocol) error {
	if O.inputname == "" {
		O.inputname = "postfold"
	}
	if mol == nil || len(mol.Coords) == 0 {
		return Error{ErrCantInput, Rosetta, O.inputname, "no structure", []string{"BuildInput"}, true}
	}
	first, err := mol.WithCoords(mol.Coords[0])
	if err != nil {
		return Error{ErrCantInput, Rosetta, O.inputname, err.Error(), []string{"BuildInput"}, true}
	}
	if err := chem.PDBFileWrite(O.path(O.inputname+".pdb"), first); err != nil {
		return Error{ErrCantInput, Rosetta, O.inputname, err.Error(), []string{"BuildInput"}, true}
	}
	O.crystal = P.PreserveCrystInfo
	O.args = rosettaArgs(O.inputname, O.settings, P)
	return nil
}

func rosettaArgs(name string, S RosettaSettings, P *Protocol) []string {
	args := []string{
		"-in:file:s", name + ".pdb",
		"-nstruct", "1",
		"-out:path:all", ".",
		"-out:file:scorefile", name + ".sc",
		"-overwrite",
		"-run:constant_seed",
		"-run:jran", strconv.FormatInt(P.Seed, 10),
	}
	if S.Database != "" {
		args = append(args, "-database", S.Database)
	}
	if P.Mute {
		args = append(args, "-mute", "all")
	}
	if P.ConstrainToStart {
		args = append(args, "-relax:constrain_relax_to_start_coords")
	}
	if P.Ex1 {
		args = append(args, "-ex1")
	}
	if P.Ex2 {
		args = append(args, "-ex2")
	}
	if P.UseInputSC {
		args = append(args, "-use_input_sc")
	}
	if P.DetectDisulf {
		args = append(args, "-in:detect_disulf", "true", "-in:detect_disulf_tolerance", strconv.FormatFloat(P.DisulfTolerance, 'f', -1, 64))
	}
	if P.PreserveCrystInfo {
		args = append(args, "-preserve_crystinfo", "true")
	}
	if P.Repeats > 0 {
		args = append(args, "-relax:default_repeats", strconv.Itoa(P.Repeats))
	}
	if P.ScoreFunction != "" {
		args = append(args, "-score:weights", P.ScoreFunction)
	}
	args = append(args, S.Flags...)
	return append(args, P.Others...)
}

// Run runs the relax application in the handle's directory and waits for it.
func (O *RosettaHandle) Run(ctx context.Context) error {
	if O.args == nil {
		return Error{ErrNotRunning, Rosetta, O.inputname, "BuildInput was not called", []string{"Run"}, true}
	}
	if err := runCommand(ctx, O.dir, O.inputname+".log", O.settings.Binary, O.args...); err != nil {
		return Error{ErrNotRunning, Rosetta, O.inputname, err.Error(), []string{"exec.Run", "Run"}, true}
	}
	return nil
}

// Energy returns the total_score of the relaxed structure, in Rosetta
// energy units.
func (O *RosettaHandle) Energy() (float64, error) {
	f, err := os.Open(O.path(O.inputname + ".sc"))
	if err != nil {
		return 0, Error{ErrNoEnergy, Rosetta, O.inputname, err.Error(), []string{"os.Open", "Energy"}, true}
	}
	defer f.Close()
	e, err := readScoreFile(f, "total_score")
	if err != nil {
		return 0, Error{ErrNoEnergy, Rosetta, O.inputname, err.Error(), []string{"readScoreFile", "Energy"}, true}
	}
	return e, nil
}

// readScoreFile returns the value of the column term in the last score
// line of a Rosetta score file.
func readScoreFile(r io.Reader, term string) (float64, error) {
	col := -1
	val := ""
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "SCORE:" {
			continue
		}
		header := -1
		for i, v := range fields {
			if v == term {
				header = i
			}
		}
		if header >= 0 {
			col = header
			continue
		}
		if col < 0 {
			return 0, fmt.Errorf("no %s column in score header", term)
		}
		if col >= len(fields) {
			return 0, fmt.Errorf("score line with %d columns, %s is column %d", len(fields), term, col)
		}
		val = fields[col]
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if val == "" {
		return 0, fmt.Errorf("no score lines")
	}
	e, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(e) {
		return 0, fmt.Errorf("%s is NaN", term)
	}
	return e, nil
}

// RelaxedStructure reads the structure written by Rosetta. If crystal
// information was to be preserved and Rosetta didn't write it, the CRYST1
// record of ref is used.
func (O *RosettaHandle) RelaxedStructure(ref *chem.Molecule) (*chem.Molecule, error) {
	mol, err := chem.PDBFileRead(O.path(O.inputname + "_0001.pdb"))
	if err != nil {
		return nil, Error{ErrNoGeometry, Rosetta, O.inputname, err.Error(), []string{"RelaxedStructure"}, true}
	}
	if O.crystal && mol.Crystal == "" && ref != nil {
		mol.Crystal = ref.Crystal
	}
	return mol, nil
}
