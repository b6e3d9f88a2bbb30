/*
 * native.go, part of postfold.
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

	"github.com/postfold/postfold/chem"
	"github.com/postfold/postfold/clash"
	v3 "github.com/postfold/postfold/v3"
	"gonum.org/v1/gonum/optimize"
)

// NativeSettings are the parameters of the built-in restrained minimizer.
// Energies are in kcal/mol and distances in Å.
type NativeSettings struct {
	Restraint     float64 `mapstructure:"restraint" yaml:"restraint"`           // CA atoms, per Å²
	Bond          float64 `mapstructure:"bond" yaml:"bond"`                     // per Å²
	Clash         float64 `mapstructure:"clash" yaml:"clash"`                   // per Å² of overlap
	HeavyDistance float64 `mapstructure:"heavy_distance" yaml:"heavy_distance"` // closest non-bonded heavy atoms
	HDistance     float64 `mapstructure:"h_distance" yaml:"h_distance"`         // closest non-bonded pair involving H
	Cutoff        float64 `mapstructure:"cutoff" yaml:"cutoff"`
	MaxIterations int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	Perturb       float64 `mapstructure:"perturb" yaml:"perturb"` // used when the protocol sets none
}

// SetDefaults sets parameters that fix bad contacts while keeping the
// structure close to the prediction.
func (S *NativeSettings) SetDefaults() {
	S.Restraint = 10
	S.Bond = 300
	S.Clash = 10
	S.HeavyDistance = 2.8
	S.HDistance = 2.0
	S.Cutoff = 6
	S.MaxIterations = 500
	S.Perturb = 0.2
}

// weakRestraint is the fraction of the CA restraint applied to the other atoms.
const weakRestraint = 0.05

type pair struct {
	i, j int
	d    float64 // reference distance
}

// NativeHandle relaxes a structure with a restrained minimization using
// L-BFGS. The energy has three terms: harmonic restraints to the starting
// coordinates, harmonic bonds taken from the starting geometry and a
// quadratic penalty for non-bonded atoms that are too close. Each trajectory
// starts from the input coordinates plus a random displacement drawn from
// the trajectory seed, so different seeds give different minima.
type NativeHandle struct {
	settings  NativeSettings
	inputname string
	dir       string
	ref       []float64 // starting coordinates, flat
	start     []float64 // perturbed starting coordinates
	weights   []float64 // restraint per atom
	bonds     []pair
	nonbonded []pair
	maxiter   int
	result    *optimize.Result
}

// NewNativeHandle returns a handle with the settings S.
func NewNativeHandle(S NativeSettings) *NativeHandle {
	run := new(NativeHandle)
	run.settings = S
	return run
}

func (O *NativeHandle) SetName(name string) { O.inputname = name }

// SetDir sets the directory for the job. The native engine writes no files.
func (O *NativeHandle) SetDir(dir string) { O.dir = dir }

// BuildInput sets up the energy function for the first conformation of mol.
func (O *NativeHandle) BuildInput(mol *chem.Molecule, P *Protocol) error {
	if mol == nil || len(mol.Coords) == 0 || mol.Len() == 0 {
		return Error{ErrCantInput, Native, O.inputname, "no structure", []string{"BuildInput"}, true}
	}
	coords := mol.Coords[0]
	n := mol.Len()
	O.ref = append([]float64(nil), coords.RawData()...)
	O.weights = make([]float64, n)
	ca := chem.CAIndexes(mol)
	isCA := make([]bool, n)
	for _, v := range ca {
		isCA[v] = true
	}
	for i := range O.weights {
		O.weights[i] = O.settings.Restraint * weakRestraint
		if P.ConstrainToStart && isCA[i] {
			O.weights[i] = O.settings.Restraint
		}
	}
	O.topology(mol, coords)
	sigma := P.Perturb
	if sigma <= 0 {
		sigma = O.settings.Perturb
	}
	start := coords.Clone()
	start.Perturb(rand.New(rand.NewSource(P.Seed)), sigma)
	O.start = append([]float64(nil), start.RawData()...)
	O.maxiter = O.settings.MaxIterations
	if P.MaxIterations > 0 {
		O.maxiter = P.MaxIterations
	}
	O.result = nil
	return nil
}

func isH(at *chem.Atom) bool { return at.Symbol == "H" || at.Symbol == "D" }

// topology takes the bonds from the starting geometry and collects the
// non-bonded pairs within the cutoff, leaving out 1-3 pairs.
func (O *NativeHandle) topology(mol *chem.Molecule, coords *v3.Matrix) {
	n := mol.Len()
	bonds := clash.Bonds(mol, coords)
	O.bonds = O.bonds[:0]
	for _, b := range bonds {
		O.bonds = append(O.bonds, pair{b.I, b.J, b.Length})
	}
	excluded := clash.Exclude(n, bonds, 2)
	O.nonbonded = O.nonbonded[:0]
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if excluded.Has(i, j) || coords.Dist(i, j) > O.settings.Cutoff {
				continue
			}
			r := O.settings.HeavyDistance
			if isH(mol.Atom(i)) || isH(mol.Atom(j)) {
				r = O.settings.HDistance
			}
			O.nonbonded = append(O.nonbonded, pair{i, j, r})
		}
	}
}

func dist(x []float64, i, j int) (float64, [3]float64) {
	var v [3]float64
	for k := 0; k < 3; k++ {
		v[k] = x[3*i+k] - x[3*j+k]
	}
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2]), v
}

// energy returns the energy for the flat coordinates x, and, if grad is not
// nil, puts the gradient in it.
func (O *NativeHandle) energy(x, grad []float64) float64 {
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}
	e := 0.0
	for i, w := range O.weights {
		for k := 0; k < 3; k++ {
			d := x[3*i+k] - O.ref[3*i+k]
			e += w * d * d
			if grad != nil {
				grad[3*i+k] += 2 * w * d
			}
		}
	}
	term := func(p pair, k, delta float64, v [3]float64, d float64) {
		if grad == nil || d == 0 {
			return
		}
		f := 2 * k * delta / d
		for c := 0; c < 3; c++ {
			grad[3*p.i+c] += f * v[c]
			grad[3*p.j+c] -= f * v[c]
		}
	}
	for _, b := range O.bonds {
		d, v := dist(x, b.i, b.j)
		delta := d - b.d
		e += O.settings.Bond * delta * delta
		term(b, O.settings.Bond, delta, v, d)
	}
	for _, p := range O.nonbonded {
		d, v := dist(x, p.i, p.j)
		if d >= p.d {
			continue
		}
		delta := d - p.d
		e += O.settings.Clash * delta * delta
		term(p, O.settings.Clash, delta, v, d)
	}
	return e
}

// ctxConverger stops the minimization when its context is done.
type ctxConverger struct {
	ctx context.Context
	optimize.FunctionConverge
}

func (c *ctxConverger) Converged(l *optimize.Location) optimize.Status {
	if c.ctx.Err() != nil {
		return optimize.RuntimeLimit
	}
	return c.FunctionConverge.Converged(l)
}

// Run minimizes the energy from the perturbed starting coordinates.
func (O *NativeHandle) Run(ctx context.Context) error {
	if O.start == nil {
		return Error{ErrNotRunning, Native, O.inputname, "BuildInput was not called", []string{"Run"}, true}
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 { return O.energy(x, nil) },
		Grad: func(grad, x []float64) { O.energy(x, grad) },
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-4,
		MajorIterations:   O.maxiter,
		Converger: &ctxConverger{ctx: ctx, FunctionConverge: optimize.FunctionConverge{
			Absolute:   1e-8,
			Iterations: 20,
		}},
	}
	result, err := optimize.Minimize(problem, O.start, settings, &optimize.LBFGS{})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if result == nil {
		return Error{ErrNotRunning, Native, O.inputname, fmt.Sprint(err), []string{"optimize.Minimize", "Run"}, true}
	}
	// A failed line search near the minimum still leaves a usable result.
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return Error{ErrNotRunning, Native, O.inputname, fmt.Sprintf("non-finite energy, %v", err), []string{"optimize.Minimize", "Run"}, true}
	}
	O.result = result
	return nil
}

// Energy returns the final energy of the minimization, in kcal/mol.
func (O *NativeHandle) Energy() (float64, error) {
	if O.result == nil {
		return 0, Error{ErrNoEnergy, Native, O.inputname, "no minimization result", []string{"Energy"}, true}
	}
	return O.result.F, nil
}

// RelaxedStructure returns the minimized coordinates on the topology of ref.
func (O *NativeHandle) RelaxedStructure(ref *chem.Molecule) (*chem.Molecule, error) {
	if O.result == nil {
		return nil, Error{ErrNoGeometry, Native, O.inputname, "no minimization result", []string{"RelaxedStructure"}, true}
	}
	coords, err := v3.NewMatrix(append([]float64(nil), O.result.X...))
	if err != nil {
		return nil, Error{ErrNoGeometry, Native, O.inputname, err.Error(), []string{"v3.NewMatrix", "RelaxedStructure"}, true}
	}
	mol, err := ref.WithCoords(coords)
	if err != nil {
		return nil, Error{ErrNoGeometry, Native, O.inputname, err.Error(), []string{"RelaxedStructure"}, true}
	}
	return mol, nil
}
