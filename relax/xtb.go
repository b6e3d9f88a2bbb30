/*
 * xtb.go, part of postfold.
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
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/postfold/postfold/chem"
)

// XTBSettings are the settings for the xtb engine.
type XTBSettings struct {
	Binary        string  `mapstructure:"binary" yaml:"binary"`
	Method        string  `mapstructure:"method" yaml:"method"` // gfnff, gfn0, gfn1 or gfn2
	NCPU          int     `mapstructure:"ncpu" yaml:"ncpu"`     // per trajectory
	ForceConstant float64 `mapstructure:"force_constant" yaml:"force_constant"`
	Solvent       string  `mapstructure:"solvent" yaml:"solvent"` // ALPB solvent, "" for gas phase
	Perturb       float64 `mapstructure:"perturb" yaml:"perturb"` // Å, used when the protocol sets none
}

// SetDefaults sets a force-field optimization on one CPU.
func (S *XTBSettings) SetDefaults() {
	S.Binary = "xtb"
	S.Method = "gfnff"
	S.NCPU = 1
	S.ForceConstant = 1.0
	S.Perturb = 0.2
}

// XTBHandle relaxes a structure with an xtb optimization. Each handle
// must run in its own directory, as xtb always writes its optimized
// geometry to xtbopt.xyz.
type XTBHandle struct {
	settings  XTBSettings
	inputname string
	dir       string
	options   []string
}

// NewXTBHandle returns a handle with the settings S.
func NewXTBHandle(S XTBSettings) *XTBHandle {
	run := new(XTBHandle)
	run.settings = S
	if run.settings.Binary == "" {
		run.settings.Binary = "xtb"
	}
	return run
}

func (O *XTBHandle) SetName(name string) { O.inputname = name }

func (O *XTBHandle) SetDir(dir string) { O.dir = dir }

func (O *XTBHandle) path(name string) string { return filepath.Join(O.dir, name) }

// BuildInput writes the starting geometry, perturbed with the seed of the
// trajectory so each one starts from a different point, and an xcontrol file that, if P.ConstrainToStart is set, restrains the CA atoms
// to their starting positions.
func (O *XTBHandle) BuildInput(mol *chem.Molecule, P *Protocol) error {
	if O.inputname == "" {
		O.inputname = "postfold"
	}
	if mol == nil || len(mol.Coords) == 0 {
		return Error{ErrCantInput, XTB, O.inputname, "no structure", []string{"BuildInput"}, true}
	}
	sigma := P.Perturb
	if sigma <= 0 {
		sigma = O.settings.Perturb
	}
	coords := mol.Coords[0].Clone()
	coords.Perturb(rand.New(rand.NewSource(P.Seed)), sigma)
	if err := chem.XYZFileWrite(O.path(O.inputname+".xyz"), coords, mol); err != nil {
		return Error{ErrCantInput, XTB, O.inputname, err.Error(), []string{"BuildInput"}, true}
	}
	var xcontrol strings.Builder
	if P.ConstrainToStart {
		ca := chem.CAIndexes(mol)
		if len(ca) > 0 {
			list := make([]int, 0, len(ca))
			for _, v := range ca {
				list = append(list, v+1) //xtb counts from 1
			}
			xcontrol.WriteString(fmt.Sprintf("$constrain\n force constant=%g\n atoms: %s\n$end\n", O.settings.ForceConstant, rangeList(list)))
		}
	}
	if P.MaxIterations > 0 {
		xcontrol.WriteString(fmt.Sprintf("$opt\n maxcycle=%d\n$end\n", P.MaxIterations))
	}
	if err := os.WriteFile(O.path(O.inputname+".inp"), []byte(xcontrol.String()), 0o644); err != nil {
		return Error{ErrCantInput, XTB, O.inputname, err.Error(), []string{"BuildInput"}, true}
	}
	O.options = []string{O.inputname + ".xyz", "--input", O.inputname + ".inp", "--opt", "normal"}
	O.options = append(O.options, "-c", strconv.Itoa(mol.Charge()), "-u", strconv.Itoa(mol.Multi()-1))
	switch O.settings.Method {
	case "gfnff":
		O.options = append(O.options, "--gfnff")
	case "gfn0", "gfn1", "gfn2":
		O.options = append(O.options, "--gfn", strings.TrimPrefix(O.settings.Method, "gfn"))
	default:
		O.options = append(O.options, "--gfn", "2")
	}
	if O.settings.NCPU > 1 {
		O.options = append(O.options, "-P", strconv.Itoa(O.settings.NCPU))
	}
	if O.settings.Solvent != "" && O.settings.Method != "gfn0" { //gfn0 doesn't support implicit solvation
		O.options = append(O.options, "--alpb", O.settings.Solvent)
	}
	O.options = append(O.options, P.Others...)
	return nil
}

// rangeList formats 1-based atom indexes the way xcontrol expects
// them, collapsing consecutive runs: 1-3,7,9-10
func rangeList(l []int) string {
	sort.Ints(l)
	var parts []string
	for i := 0; i < len(l); {
		j := i
		for j+1 < len(l) && l[j+1] == l[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, fmt.Sprintf("%d-%d", l[i], l[j]))
		} else {
			parts = append(parts, strconv.Itoa(l[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// Run runs xtb in the handle's directory and waits for it to finish.
func (O *XTBHandle) Run(ctx context.Context) error {
	if O.options == nil {
		return Error{ErrNotRunning, XTB, O.inputname, "BuildInput was not called", []string{"Run"}, true}
	}
	err := runCommand(ctx, O.dir, O.inputname+".out", O.settings.Binary, O.options...)
	if err != nil {
		return Error{ErrNotRunning, XTB, O.inputname, err.Error(), []string{"exec.Run", "Run"}, true}
	}
	os.Remove(O.path("xtbrestart"))
	return nil
}

// normalTermination checks that an xtb calculation has terminated normally.
func (O *XTBHandle) normalTermination() bool {
	out := O.path(O.inputname + ".out")
	return searchBackwards("normal termination of x", out) != "" && searchBackwards("abnormal termination of x", out) == ""
}

// Energy returns the final energy of the optimization in kcal/mol.
func (O *XTBHandle) Energy() (float64, error) {
	if !O.normalTermination() {
		return 0, Error{ErrNoEnergy, XTB, O.inputname, "calculation didn't end normally", []string{"Energy"}, true}
	}
	energyline := searchBackwards("TOTAL ENERGY", O.path(O.inputname+".out"))
	split := strings.Fields(energyline)
	if len(split) < 4 {
		return 0, Error{ErrNoEnergy, XTB, O.inputname, "no energy line", []string{"searchBackwards", "Energy"}, true}
	}
	energy, err := strconv.ParseFloat(split[3], 64)
	if err != nil || math.IsNaN(energy) {
		return 0, Error{ErrNoEnergy, XTB, O.inputname, fmt.Sprintf("bad energy %q", split[3]), []string{"strconv.ParseFloat", "Energy"}, true}
	}
	return energy * chem.H2Kcal, nil
}

// RelaxedStructure reads the optimized geometry and places it on the
// topology of ref.
func (O *XTBHandle) RelaxedStructure(ref *chem.Molecule) (*chem.Molecule, error) {
	if !O.normalTermination() {
		return nil, Error{ErrNoGeometry, XTB, O.inputname, "calculation didn't end normally", []string{"RelaxedStructure"}, true}
	}
	opt, err := chem.XYZFileRead(O.path("xtbopt.xyz"))
	if err != nil {
		return nil, Error{ErrNoGeometry, XTB, O.inputname, err.Error(), []string{"RelaxedStructure"}, true}
	}
	if opt.Len() != ref.Len() {
		return nil, Error{ErrNoGeometry, XTB, O.inputname, fmt.Sprintf("%d atoms in the optimized geometry, %d expected", opt.Len(), ref.Len()), []string{"RelaxedStructure"}, true}
	}
	mol, err := ref.WithCoords(opt.Coords[0])
	if err != nil {
		return nil, Error{ErrNoGeometry, XTB, O.inputname, err.Error(), []string{"RelaxedStructure"}, true}
	}
	return mol, nil
}
