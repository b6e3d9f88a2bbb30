/*
 * relax_test.go, part of postfold.
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
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/postfold/postfold/chem"
	v3 "github.com/postfold/postfold/v3"
	"github.com/stretchr/testify/require"
)

func peptide(t *testing.T) *chem.Molecule {
	t.Helper()
	mol, err := chem.PDBFileRead("../chem/testdata/peptide.pdb")
	require.NoError(t, err)
	return mol
}

func TestLowest(t *testing.T) {
	i, err := Lowest([]float64{3, -1, 2, -1})
	require.NoError(t, err)
	require.Equal(t, 1, i, "ties go to the first occurrence")

	i, err = Lowest([]float64{math.NaN(), 5, 5})
	require.NoError(t, err)
	require.Equal(t, 1, i)

	_, err = Lowest(nil)
	require.ErrorIs(t, err, ErrEmpty)
	_, err = Lowest([]float64{math.NaN()})
	require.ErrorIs(t, err, ErrEmpty)

	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		e := make([]float64, 1+rng.Intn(20))
		for j := range e {
			e[j] = float64(rng.Intn(5)) // plenty of ties
		}
		i, err := Lowest(e)
		require.NoError(t, err)
		for j, v := range e {
			require.GreaterOrEqual(t, v, e[i])
			if j < i {
				require.Greater(t, v, e[i], "an earlier index holds the minimum in %v", e)
			}
		}
	}
}

func TestWorkers(t *testing.T) {
	require.Equal(t, 3, Workers(3, 10))
	require.Equal(t, 2, Workers(10, 2))
	require.Equal(t, 1, Workers(1, 1))
}

func TestRunValidation(t *testing.T) {
	mol := peptide(t)
	newh := func() Handle { return NewNativeHandle(NativeSettings{}) }
	_, err := Run(context.Background(), mol, Options{NStruct: 0, NProc: 1, NewHandle: newh})
	require.ErrorIs(t, err, ErrBadCount)
	_, err = Run(context.Background(), mol, Options{NStruct: 1, NProc: 0, NewHandle: newh})
	require.ErrorIs(t, err, ErrBadCount)
	_, err = Run(context.Background(), mol, Options{NStruct: 1, NProc: 1})
	require.ErrorIs(t, err, ErrNoEngine)
}

// fakeHandle returns the energy energies[seed] after a short wait, and
// fails for the seed fail.
type fakeHandle struct {
	energies   []float64
	fail       int64
	seed       int64
	running    *atomic.Int32
	maxRunning *atomic.Int32
}

func (f *fakeHandle) SetName(string) {}
func (f *fakeHandle) SetDir(string)  {}

func (f *fakeHandle) BuildInput(mol *chem.Molecule, P *Protocol) error {
	f.seed = P.Seed
	return nil
}

func (f *fakeHandle) Run(ctx context.Context) error {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		m := f.maxRunning.Load()
		if n <= m || f.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}
	if f.seed == f.fail {
		return Error{ErrNotRunning, "fake", "fake", "", []string{"Run"}, true}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return nil
}

func (f *fakeHandle) Energy() (float64, error) { return f.energies[f.seed], nil }

func (f *fakeHandle) RelaxedStructure(ref *chem.Molecule) (*chem.Molecule, error) {
	return ref.Copy(), nil
}

func fakeEngine(energies []float64, fail int64) (NewHandleFunc, *atomic.Int32) {
	running := new(atomic.Int32)
	maxRunning := new(atomic.Int32)
	return func() Handle {
		return &fakeHandle{energies: energies, fail: fail, running: running, maxRunning: maxRunning}
	}, maxRunning
}

func TestRunSelectsLowest(t *testing.T) {
	mol := peptide(t)
	energies := []float64{-10, -30, -20, -30, -5}
	newh, maxRunning := fakeEngine(energies, -1)
	work := t.TempDir()
	out, err := Run(context.Background(), mol, Options{NStruct: 5, NProc: 2, NewHandle: newh, WorkDir: work})
	require.NoError(t, err)
	require.Len(t, out.Trajectories, 5)
	require.Equal(t, energies, out.Energies())
	require.Equal(t, 1, out.Best.Index)
	require.Equal(t, 2, out.Workers)
	require.LessOrEqual(t, maxRunning.Load(), int32(2))
	require.InDelta(t, 0, out.Trajectories[0].RMSD, 1e-4)
	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	require.Empty(t, entries, "scratch directories should be removed")
}

func TestEnsemble(t *testing.T) {
	mol := peptide(t)
	newh, _ := fakeEngine([]float64{1, 2, 3}, -1)
	out, err := Run(context.Background(), mol, Options{NStruct: 3, NProc: 3, NewHandle: newh, WorkDir: t.TempDir()})
	require.NoError(t, err)
	ens, err := out.Ensemble()
	require.NoError(t, err)
	require.Len(t, ens.Coords, 3)
	require.Len(t, ens.Bfactors, 3)
	require.Equal(t, mol.Len(), ens.Len())
	require.Equal(t, mol.Crystal, ens.Crystal)

	short, err := chem.NewMolecule([]*v3.Matrix{v3.Zeros(1)}, chem.NewTopology(0, 1, []*chem.Atom{mol.Atom(0).Copy()}), nil)
	require.NoError(t, err)
	out.Trajectories[2].Mol = short
	_, err = out.Ensemble()
	require.ErrorIs(t, err, ErrNoGeometry)
}

func TestRunSequential(t *testing.T) {
	newh, maxRunning := fakeEngine([]float64{1, 2, 3}, -1)
	out, err := Run(context.Background(), peptide(t), Options{NStruct: 3, NProc: 1, NewHandle: newh, WorkDir: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, int32(1), maxRunning.Load())
	require.Equal(t, 0, out.Best.Index)
}

func TestRunKeep(t *testing.T) {
	newh, _ := fakeEngine([]float64{1, 2}, -1)
	work := t.TempDir()
	out, err := Run(context.Background(), peptide(t), Options{NStruct: 2, NProc: 2, NewHandle: newh, WorkDir: work, Keep: true})
	require.NoError(t, err)
	require.DirExists(t, out.Dir)
	require.DirExists(t, out.Trajectories[1].Dir)
	require.True(t, strings.HasPrefix(out.Trajectories[1].Dir, out.Dir))
}

func TestRunFailure(t *testing.T) {
	newh, _ := fakeEngine(make([]float64, 6), 2)
	_, err := Run(context.Background(), peptide(t), Options{NStruct: 6, NProc: 3, NewHandle: newh, WorkDir: t.TempDir()})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestRunCancelled(t *testing.T) {
	newh, _ := fakeEngine(make([]float64, 4), -1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, peptide(t), Options{NStruct: 4, NProc: 2, NewHandle: newh, WorkDir: t.TempDir()})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunCheckpoint(t *testing.T) {
	mol := peptide(t)
	ckpt := filepath.Join(t.TempDir(), "ckpt")
	newh, _ := fakeEngine([]float64{-7, -3, 0, 0}, 2)
	_, err := Run(context.Background(), mol, Options{NStruct: 4, NProc: 1, NewHandle: newh, WorkDir: t.TempDir(), Checkpoint: ckpt, Engine: "fake"})
	require.ErrorIs(t, err, ErrNotRunning)
	require.FileExists(t, filepath.Join(ckpt, "traj_0000.msgpack"))
	require.FileExists(t, filepath.Join(ckpt, "traj_0001.msgpack"))
	require.NoFileExists(t, filepath.Join(ckpt, "traj_0002.msgpack"))

	newh, _ = fakeEngine([]float64{100, 100, -1, 5}, -1)
	out, err := Run(context.Background(), mol, Options{NStruct: 4, NProc: 2, NewHandle: newh, WorkDir: t.TempDir(), Checkpoint: ckpt, Engine: "fake"})
	require.NoError(t, err)
	require.Equal(t, []float64{-7, -3, -1, 5}, out.Energies())
	require.True(t, out.Trajectories[0].Resumed)
	require.False(t, out.Trajectories[2].Resumed)
	require.Equal(t, 0, out.Best.Index)
	require.Equal(t, mol.Len(), out.Best.Mol.Len())
	require.InDelta(t, mol.Coords[0].At(3, 1), out.Best.Mol.Coords[0].At(3, 1), 1e-12)
	require.Equal(t, mol.Crystal, out.Best.Mol.Crystal)

	digest, err := inputDigest(mol, "fake", new(Protocol))
	require.NoError(t, err)
	_, err = loadCheckpoint(ckpt, 0, 99, digest)
	require.ErrorIs(t, err, errStaleCheckpoint, "checkpoints of other seeds are not resumed")
}

// Checkpoints written for one structure, engine or protocol must not be
// resumed for another one with the same atoms.
func TestCheckpointOtherRun(t *testing.T) {
	mol := peptide(t)
	ckpt := filepath.Join(t.TempDir(), "ckpt")
	opts := func(newh NewHandleFunc, engine string, P *Protocol) Options {
		return Options{NStruct: 2, NProc: 2, NewHandle: newh, WorkDir: t.TempDir(), Checkpoint: ckpt, Engine: engine, Protocol: P}
	}
	newh, _ := fakeEngine([]float64{-7, -3}, -1)
	_, err := Run(context.Background(), mol, opts(newh, "fake", nil))
	require.NoError(t, err)

	moved := mol.Copy()
	moved.Coords[0].Set(0, 0, 40)
	newh, _ = fakeEngine([]float64{100, 50}, -1)
	out, err := Run(context.Background(), moved, opts(newh, "fake", nil))
	require.NoError(t, err)
	require.Equal(t, []float64{100, 50}, out.Energies())
	require.False(t, out.Trajectories[0].Resumed)
	require.Equal(t, 40.0, out.Best.Mol.Coords[0].At(0, 0))

	// The second run replaced the checkpoints; the first structure doesn't match them now.
	newh, _ = fakeEngine([]float64{1, 2}, -1)
	out, err = Run(context.Background(), moved, opts(newh, "other", nil))
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, out.Energies(), "another engine runs again")

	P := new(Protocol)
	P.SetDefaults()
	P.Ex2 = false
	newh, _ = fakeEngine([]float64{3, 4}, -1)
	out, err = Run(context.Background(), moved, opts(newh, "other", P))
	require.NoError(t, err)
	require.Equal(t, []float64{3, 4}, out.Energies(), "another protocol runs again")

	newh, _ = fakeEngine([]float64{8, 9}, -1)
	out, err = Run(context.Background(), moved, opts(newh, "other", P))
	require.NoError(t, err)
	require.Equal(t, []float64{3, 4}, out.Energies(), "the same run is resumed")
	require.True(t, out.Trajectories[1].Resumed)
}

// hydrogenating adds a hydrogen to the relaxed structure, as Rosetta does
// with structures predicted without them.
type hydrogenating struct {
	*fakeHandle
}

func (h hydrogenating) RelaxedStructure(ref *chem.Molecule) (*chem.Molecule, error) {
	mol := ref.Copy()
	ats := append(mol.Atoms, &chem.Atom{Name: "H", ID: mol.Len() + 1, MolName: "ALA", MolID: 1, Chain: "A", Symbol: "H", Occupancy: 1})
	coords := v3.Zeros(len(ats))
	coords.SetVecs(mol.Coords[0], seq(mol.Len()))
	coords.Set(len(ats)-1, 0, 1.5)
	return chem.NewMolecule([]*v3.Matrix{coords}, chem.NewTopology(0, 1, ats), nil)
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func TestCheckpointNewTopology(t *testing.T) {
	mol := peptide(t)
	ckpt := filepath.Join(t.TempDir(), "ckpt")
	engine := func(energies []float64) NewHandleFunc {
		newh, _ := fakeEngine(energies, -1)
		return func() Handle { return hydrogenating{newh().(*fakeHandle)} }
	}
	_, err := Run(context.Background(), mol, Options{NStruct: 2, NProc: 2, NewHandle: engine([]float64{-7, -3}), WorkDir: t.TempDir(), Checkpoint: ckpt})
	require.NoError(t, err)

	out, err := Run(context.Background(), mol, Options{NStruct: 2, NProc: 2, NewHandle: engine([]float64{100, 100}), WorkDir: t.TempDir(), Checkpoint: ckpt})
	require.NoError(t, err)
	require.Equal(t, []float64{-7, -3}, out.Energies())
	require.True(t, out.Best.Resumed)
	require.Equal(t, mol.Len()+1, out.Best.Mol.Len())
	last := out.Best.Mol.Atom(mol.Len())
	require.Equal(t, "H", last.Symbol)
	require.Equal(t, 1.5, out.Best.Mol.Coords[0].At(mol.Len(), 0))
	ens, err := out.Ensemble()
	require.NoError(t, err)
	require.Len(t, ens.Coords, 2)
}

func nativeEngine() NewHandleFunc {
	var S Settings
	S.SetDefaults()
	newh, err := Engine(Native, S)
	if err != nil {
		panic(err)
	}
	return newh
}

func TestRunNative(t *testing.T) {
	mol := peptide(t)
	out, err := Run(context.Background(), mol, Options{NStruct: 4, NProc: 4, Seed: 11, NewHandle: nativeEngine(), WorkDir: t.TempDir()})
	require.NoError(t, err)
	best, err := Lowest(out.Energies())
	require.NoError(t, err)
	require.Same(t, out.Trajectories[best], out.Best)
	for _, tr := range out.Trajectories {
		require.GreaterOrEqual(t, tr.Energy, 0.0)
		require.Less(t, tr.RMSD, 1.0)
		require.Equal(t, mol.Len(), tr.Mol.Len())
		require.Equal(t, int64(11+tr.Index), tr.Seed)
	}
	again, err := Run(context.Background(), mol, Options{NStruct: 4, NProc: 2, Seed: 11, NewHandle: nativeEngine(), WorkDir: t.TempDir()})
	require.NoError(t, err)
	require.InDeltaSlice(t, out.Energies(), again.Energies(), 1e-9, "same seeds should give the same trajectories")
}

func TestNativeGradient(t *testing.T) {
	mol := peptide(t)
	var S NativeSettings
	S.SetDefaults()
	h := NewNativeHandle(S)
	P := new(Protocol)
	P.SetDefaults()
	P.Seed = 3
	P.Perturb = 0.3
	require.NoError(t, h.BuildInput(mol, P))
	x := append([]float64(nil), h.start...)
	grad := make([]float64, len(x))
	e0 := h.energy(x, grad)
	const step = 1e-6
	for i := range x {
		orig := x[i]
		x[i] = orig + step
		ep := h.energy(x, nil)
		x[i] = orig - step
		em := h.energy(x, nil)
		x[i] = orig
		require.InDelta(t, (ep-em)/(2*step), grad[i], 1e-3*math.Max(1, math.Abs(grad[i])), "coordinate %d", i)
	}
	require.NoError(t, h.Run(context.Background()))
	e, err := h.Energy()
	require.NoError(t, err)
	require.Less(t, e, e0)
}

func TestEngine(t *testing.T) {
	var S Settings
	S.SetDefaults()
	for _, name := range []string{Rosetta, XTB, Native, "XTB"} {
		newh, err := Engine(name, S)
		require.NoError(t, err)
		require.NotNil(t, newh())
	}
	_, err := Engine("amber", S)
	require.ErrorIs(t, err, ErrNoEngine)
}

func TestRosettaHandle(t *testing.T) {
	mol := peptide(t)
	dir := t.TempDir()
	var S RosettaSettings
	S.SetDefaults()
	S.Database = "/opt/rosetta/database"
	h := NewRosettaHandle(S)
	h.SetName("job_0003")
	h.SetDir(dir)
	P := new(Protocol)
	P.SetDefaults()
	P.Seed = 1234
	P.Others = []string{"-relax:fast"}
	require.NoError(t, h.BuildInput(mol, P))
	require.FileExists(t, filepath.Join(dir, "job_0003.pdb"))
	args := strings.Join(h.Args(), " ")
	for _, want := range []string{
		"-in:file:s job_0003.pdb",
		"-nstruct 1",
		"-run:jran 1234",
		"-database /opt/rosetta/database",
		"-mute all",
		"-relax:constrain_relax_to_start_coords",
		"-ex1 -ex2 -use_input_sc",
		"-in:detect_disulf true -in:detect_disulf_tolerance 3.5",
		"-preserve_crystinfo true",
		"-relax:fast",
	} {
		require.Contains(t, args, want)
	}

	score := "SEQUENCE: \n" +
		"SCORE: total_score       dslf_fa13    fa_atr    description\n" +
		"SCORE:    -123.456           0.000  -200.123    job_0003_0001\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job_0003.sc"), []byte(score), 0o644))
	e, err := h.Energy()
	require.NoError(t, err)
	require.InDelta(t, -123.456, e, 1e-9)

	require.NoError(t, chem.PDBFileWrite(filepath.Join(dir, "job_0003_0001.pdb"), mol))
	relaxed, err := h.RelaxedStructure(mol)
	require.NoError(t, err)
	require.Equal(t, mol.Len(), relaxed.Len())
	require.Equal(t, mol.Crystal, relaxed.Crystal)
}

func TestReadScoreFile(t *testing.T) {
	_, err := readScoreFile(strings.NewReader("SCORE: total_score description\n"), "total_score")
	require.Error(t, err, "no score lines")
	_, err = readScoreFile(strings.NewReader("SCORE: fa_atr description\nSCORE: 1.0 x\n"), "total_score")
	require.Error(t, err, "no total_score column")
	e, err := readScoreFile(strings.NewReader("SCORE: total_score description\nSCORE: 1.5 a\nSCORE: total_score description\nSCORE: -2.5 b\n"), "total_score")
	require.NoError(t, err)
	require.Equal(t, -2.5, e)
}

func TestXTBHandle(t *testing.T) {
	mol := peptide(t)
	dir := t.TempDir()
	var S XTBSettings
	S.SetDefaults()
	S.NCPU = 2
	h := NewXTBHandle(S)
	h.SetName("job_0000")
	h.SetDir(dir)
	P := new(Protocol)
	P.SetDefaults()
	P.MaxIterations = 50
	require.NoError(t, h.BuildInput(mol, P))
	xc, err := os.ReadFile(filepath.Join(dir, "job_0000.inp"))
	require.NoError(t, err)
	require.Contains(t, string(xc), "$constrain")
	require.Contains(t, string(xc), "atoms: 2,7,11")
	require.Contains(t, string(xc), "maxcycle=50")
	require.Contains(t, h.options, "--gfnff")
	require.FileExists(t, filepath.Join(dir, "job_0000.xyz"))

	_, err = h.Energy()
	require.ErrorIs(t, err, ErrNoEnergy)

	out := "   -------------------------------------------------\n" +
		"  | TOTAL ENERGY              -2.345678901234 Eh   |\n" +
		"   -------------------------------------------------\n" +
		"   * finished run on 2026/01/01 at 00:00:00.000\n" +
		" normal termination of xtb\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job_0000.out"), []byte(out), 0o644))
	e, err := h.Energy()
	require.NoError(t, err)
	require.InDelta(t, -2.345678901234*chem.H2Kcal, e, 1e-6)

	require.NoError(t, chem.XYZFileWrite(filepath.Join(dir, "xtbopt.xyz"), mol.Coords[0], mol))
	relaxed, err := h.RelaxedStructure(mol)
	require.NoError(t, err)
	require.Equal(t, "CA", relaxed.Atom(1).Name, "the topology of the input is kept")
}

func TestEngineID(t *testing.T) {
	var S Settings
	S.XTB.SetDefaults()
	id, err := EngineID("XTB", S)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "xtb:"))
	again, err := EngineID("xtb", S)
	require.NoError(t, err)
	require.Equal(t, id, again)

	S.XTB.Perturb = 0.5
	other, err := EngineID("xtb", S)
	require.NoError(t, err)
	require.NotEqual(t, id, other, "other settings must give another id")

	_, err = EngineID("gromacs", S)
	require.ErrorIs(t, err, ErrNoEngine)
}

func TestXTBStartingPoints(t *testing.T) {
	mol := peptide(t)
	var S XTBSettings
	S.SetDefaults()
	input := func(seed int64) string {
		dir := t.TempDir()
		h := NewXTBHandle(S)
		h.SetName("job")
		h.SetDir(dir)
		P := new(Protocol)
		P.SetDefaults()
		P.Seed = seed
		require.NoError(t, h.BuildInput(mol, P))
		xyz, err := os.ReadFile(filepath.Join(dir, "job.xyz"))
		require.NoError(t, err)
		return string(xyz)
	}
	require.NotEqual(t, input(1), input(2), "trajectories must not start from the same geometry")
	require.Equal(t, input(3), input(3))

	start, err := chem.XYZRead(strings.NewReader(input(4)))
	require.NoError(t, err)
	rmsd, err := chem.RMSD(start.Coords[0], mol.Coords[0])
	require.NoError(t, err)
	require.Greater(t, rmsd, 0.05)
	require.Less(t, rmsd, 1.0)
}

func TestRangeList(t *testing.T) {
	require.Equal(t, "1-3,7,9-10", rangeList([]int{9, 1, 3, 2, 10, 7}))
	require.Equal(t, "5", rangeList([]int{5}))
}

func TestReport(t *testing.T) {
	newh, _ := fakeEngine([]float64{-1, -3, -2}, -1)
	out, err := Run(context.Background(), peptide(t), Options{NStruct: 3, NProc: 3, NewHandle: newh, WorkDir: t.TempDir()})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteScorefile(&buf, out))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[1], "total_score")
	require.Contains(t, lines[3], "traj_0001")
	fields := strings.Fields(lines[3])
	require.Equal(t, "1", fields[5], "the lowest energy trajectory is marked")
	e, err := readScoreFile(strings.NewReader(buf.String()), "total_score")
	require.NoError(t, err)
	require.Equal(t, -2.0, e)

	s := NewSummary(out)
	require.Equal(t, 1, s.Best)
	require.InDelta(t, -2.0, s.Mean, 1e-12)
	require.InDelta(t, 1.0, s.StdDev, 1e-12)
	require.Equal(t, -1.0, s.Max)
	buf.Reset()
	require.NoError(t, WriteSummary(&buf, s))
	require.Contains(t, buf.String(), "best_energy: -3")
	require.Contains(t, buf.String(), "run_id: "+out.RunID)
}

func TestErrorDecoration(t *testing.T) {
	err := Error{ErrNoEnergy, XTB, "job", "extra", []string{"Energy"}, true}
	require.True(t, errors.Is(err, ErrNoEnergy))
	require.Equal(t, []string{"Run", "Energy"}, err.Decorate("Run"))
	require.Contains(t, err.Error(), "xtb job job")
	require.True(t, err.Critical())
}
