/*
 * pool.go, part of postfold.
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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/postfold/postfold/chem"
	v3 "github.com/postfold/postfold/v3"
	"golang.org/x/sync/errgroup"
)

// Options control a set of relax trajectories.
type Options struct {
	NStruct   int           // number of trajectories
	NProc     int           // maximum number of trajectories running at the same time
	Name      string        // job name, used for scratch files
	WorkDir   string        // parent of the scratch directory, os.TempDir() if empty
	Keep      bool          // keep the scratch directory
	Seed      int64         // trajectory i uses Seed+i
	Protocol  *Protocol     // nil for the defaults
	NewHandle NewHandleFunc // creates the engine handle for each trajectory
	Logger    *slog.Logger  // nil for slog.Default()

	// Checkpoint is a directory where finished trajectories are stored.
	// Trajectories found there for the same input, engine, protocol and
	// seed are not run again.
	Checkpoint string
	// Engine identifies the engine and its settings in checkpoints,
	// see EngineID.
	Engine string
}

// Trajectory is the outcome of one relax trajectory.
type Trajectory struct {
	Index   int            `yaml:"index"`
	Seed    int64          `yaml:"seed"`
	Energy  float64        `yaml:"energy"`
	RMSD    float64        `yaml:"rmsd_ca"` // CA RMSD to the input, NaN if it couldn't be computed
	Elapsed time.Duration  `yaml:"elapsed"`
	Dir     string         `yaml:"dir,omitempty"`
	Resumed bool           `yaml:"resumed,omitempty"` // read from a checkpoint
	Mol     *chem.Molecule `yaml:"-"`
}

// Outcome is the result of a set of trajectories.
type Outcome struct {
	RunID        string
	Workers      int
	Dir          string // scratch directory, removed unless Options.Keep
	Trajectories []*Trajectory
	Best         *Trajectory
}

// Energies returns the energies of the trajectories, in order.
func (O *Outcome) Energies() []float64 {
	e := make([]float64, len(O.Trajectories))
	for i, t := range O.Trajectories {
		e[i] = t.Energy
	}
	return e
}

// Ensemble returns the relaxed structures of all trajectories as the
// conformations of a single molecule, in trajectory order. It fails if
// the structures don't have the same number of atoms.
func (O *Outcome) Ensemble() (*chem.Molecule, error) {
	if len(O.Trajectories) == 0 || O.Trajectories[0].Mol == nil {
		return nil, fmt.Errorf("%w: no structures", ErrNoGeometry)
	}
	first := O.Trajectories[0].Mol
	coords := make([]*v3.Matrix, 0, len(O.Trajectories))
	bfac := make([][]float64, 0, len(O.Trajectories))
	for _, t := range O.Trajectories {
		if t.Mol == nil || t.Mol.Len() != first.Len() {
			return nil, fmt.Errorf("%w: trajectory %d doesn't match the atoms of trajectory 0", ErrNoGeometry, t.Index)
		}
		coords = append(coords, t.Mol.Coords[0].Clone())
		bfac = append(bfac, append([]float64(nil), t.Mol.Bfactors[0]...))
	}
	ens, err := chem.NewMolecule(coords, first.CopyAtoms(), bfac)
	if err != nil {
		return nil, err
	}
	ens.Crystal = first.Crystal
	return ens, nil
}

// Workers returns the number of trajectories that run at the same time
// for nstruct trajectories and nproc processes.
func Workers(nstruct, nproc int) int {
	return min(nstruct, nproc)
}

// Lowest returns the index of the lowest energy in energies. Ties go to the
// first occurrence. NaN values are never selected.
func Lowest(energies []float64) (int, error) {
	best := -1
	for i, e := range energies {
		if math.IsNaN(e) {
			continue
		}
		if best < 0 || e < energies[best] {
			best = i
		}
	}
	if best < 0 {
		return -1, ErrEmpty
	}
	return best, nil
}

// Run runs opts.NStruct independent relax trajectories of the first
// conformation of mol, at most min(NStruct, NProc) at a time, and returns
// them all together with the one of lowest energy. If any trajectory
// fails, the rest are cancelled and the error is returned.
func Run(ctx context.Context, mol *chem.Molecule, opts Options) (*Outcome, error) {
	if opts.NStruct < 1 {
		return nil, fmt.Errorf("nstruct %d: %w", opts.NStruct, ErrBadCount)
	}
	if opts.NProc < 1 {
		return nil, fmt.Errorf("nproc %d: %w", opts.NProc, ErrBadCount)
	}
	if mol == nil || len(mol.Coords) == 0 {
		return nil, fmt.Errorf("%w: no input structure", ErrCantInput)
	}
	if opts.NewHandle == nil {
		return nil, fmt.Errorf("%w: no engine", ErrNoEngine)
	}
	P := opts.Protocol
	if P == nil {
		P = new(Protocol)
		P.SetDefaults()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	name := opts.Name
	if name == "" {
		name = "postfold"
	}
	out := &Outcome{
		RunID:        uuid.NewString(),
		Workers:      Workers(opts.NStruct, opts.NProc),
		Trajectories: make([]*Trajectory, opts.NStruct),
	}
	base := opts.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	out.Dir = filepath.Join(base, "postfold-"+out.RunID)
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	if !opts.Keep {
		defer os.RemoveAll(out.Dir)
	}
	var digest string
	if opts.Checkpoint != "" {
		if err := os.MkdirAll(opts.Checkpoint, 0o755); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
		var err error
		if digest, err = inputDigest(mol, opts.Engine, P); err != nil {
			return nil, err
		}
	}
	log = log.With("run", out.RunID)
	log.Info("starting trajectories", "nstruct", opts.NStruct, "workers", out.Workers, "dir", out.Dir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(out.Workers)
	for i := 0; i < opts.NStruct; i++ {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			seed := opts.Seed + int64(i)
			if opts.Checkpoint != "" {
				t, err := loadCheckpoint(opts.Checkpoint, i, seed, digest)
				switch {
				case errors.Is(err, errStaleCheckpoint):
					log.Info("checkpoint belongs to another input, engine or seed, running again", "index", i)
				case err != nil:
					log.Warn("ignoring unreadable checkpoint", "index", i, "error", err)
				case t != nil:
					out.Trajectories[i] = t
					log.Info("trajectory resumed from checkpoint", "index", i, "energy", t.Energy)
					return nil
				}
			}
			t, err := runTrajectory(gctx, mol, i, name, out.Dir, seed, P, opts.NewHandle)
			if err != nil {
				log.Error("trajectory failed", "index", i, "error", err)
				return err
			}
			out.Trajectories[i] = t
			if opts.Checkpoint != "" {
				if err := saveCheckpoint(opts.Checkpoint, digest, t); err != nil {
					return fmt.Errorf("checkpoint of trajectory %d: %w", i, err)
				}
			}
			log.Info("trajectory finished", "index", i, "energy", t.Energy, "rmsd_ca", t.RMSD, "elapsed", t.Elapsed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	best, err := Lowest(out.Energies())
	if err != nil {
		return nil, err
	}
	out.Best = out.Trajectories[best]
	if !opts.Keep {
		for _, t := range out.Trajectories {
			t.Dir = ""
		}
		out.Dir = ""
	}
	log.Info("selected lowest energy trajectory", "index", best, "energy", out.Best.Energy)
	return out, nil
}

// runTrajectory runs trajectory i in its own subdirectory of dir.
func runTrajectory(ctx context.Context, mol *chem.Molecule, i int, name, dir string, seed int64, P *Protocol, newHandle NewHandleFunc) (*Trajectory, error) {
	t := &Trajectory{Index: i, Seed: seed, Dir: filepath.Join(dir, fmt.Sprintf("traj_%04d", i))}
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return nil, err
	}
	tp := P.Copy()
	tp.Seed = seed
	h := newHandle()
	h.SetName(fmt.Sprintf("%s_%04d", name, i))
	h.SetDir(t.Dir)
	start := time.Now()
	if err := h.BuildInput(mol, tp); err != nil {
		return nil, err
	}
	if err := h.Run(ctx); err != nil {
		return nil, err
	}
	e, err := h.Energy()
	if err != nil {
		return nil, err
	}
	relaxed, err := h.RelaxedStructure(mol)
	if err != nil {
		return nil, err
	}
	t.Elapsed = time.Since(start)
	t.Energy = e
	t.Mol = relaxed
	t.RMSD, err = chem.CARMSD(mol, relaxed)
	if err != nil {
		t.RMSD = math.NaN()
	}
	return t, nil
}
