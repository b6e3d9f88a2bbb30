/*
 * checkpoint.go, part of postfold.
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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/postfold/postfold/chem"
	v3 "github.com/postfold/postfold/v3"
	"github.com/vmihailenco/msgpack/v5"
)

const checkpointVersion = 2

// checkpoint is a finished trajectory as stored on disk. The relaxed
// structure is stored with its own topology, as engines can add or remove
// atoms. Input is the digest of what produced it, see inputDigest.
type checkpoint struct {
	Version  int           `msgpack:"version"`
	Input    string        `msgpack:"input"`
	Index    int           `msgpack:"index"`
	Seed     int64         `msgpack:"seed"`
	Energy   float64       `msgpack:"energy"`
	RMSD     float64       `msgpack:"rmsd_ca"`
	Elapsed  time.Duration `msgpack:"elapsed"`
	Charge   int           `msgpack:"charge"`
	Multi    int           `msgpack:"multi"`
	Atoms    []chem.Atom   `msgpack:"atoms"`
	Coords   []float64     `msgpack:"coords"`
	Bfactors []float64     `msgpack:"bfactors"`
	Crystal  string        `msgpack:"crystal"`
}

func checkpointName(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("traj_%04d.msgpack", i))
}

func atomValues(top chem.Atomer) []chem.Atom {
	ats := make([]chem.Atom, top.Len())
	for i := range ats {
		ats[i] = *top.Atom(i)
	}
	return ats
}

// inputDigest identifies the starting point of a set of trajectories: the
// first conformation of mol with its topology, the engine and the protocol.
// The seed is left out, as each trajectory stores its own.
func inputDigest(mol *chem.Molecule, engine string, P *Protocol) (string, error) {
	p := P.Copy()
	p.Seed = 0
	data, err := msgpack.Marshal(&struct {
		Engine   string
		Protocol *Protocol
		Atoms    []chem.Atom
		Coords   []float64
		Crystal  string
	}{engine, p, atomValues(mol), mol.Coords[0].Clone().RawData(), mol.Crystal})
	if err != nil {
		return "", fmt.Errorf("msgpack marshal: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// EngineID returns a string identifying the engine name with its settings,
// so checkpoints written with other settings are not resumed.
func EngineID(name string, S Settings) (string, error) {
	name = strings.ToLower(name)
	var engine any
	switch name {
	case Rosetta:
		engine = S.Rosetta
	case XTB:
		engine = S.XTB
	case Native:
		engine = S.Native
	default:
		return "", fmt.Errorf("%w: %q", ErrNoEngine, name)
	}
	data, err := msgpack.Marshal(engine)
	if err != nil {
		return "", fmt.Errorf("msgpack marshal: %w", err)
	}
	sum := sha256.Sum256(data)
	return name + ":" + hex.EncodeToString(sum[:8]), nil
}

// saveCheckpoint writes t to dir. The file is written under a temporary
// name and renamed, so a partial file is never taken for a finished one.
func saveCheckpoint(dir, input string, t *Trajectory) error {
	c := checkpoint{
		Version: checkpointVersion,
		Input:   input,
		Index:   t.Index,
		Seed:    t.Seed,
		Energy:  t.Energy,
		RMSD:    t.RMSD,
		Elapsed: t.Elapsed,
		Charge:  t.Mol.Charge(),
		Multi:   t.Mol.Multi(),
		Atoms:   atomValues(t.Mol),
		Coords:  t.Mol.Coords[0].Clone().RawData(),
		Crystal: t.Mol.Crystal,
	}
	if len(t.Mol.Bfactors) > 0 {
		c.Bfactors = t.Mol.Bfactors[0]
	}
	data, err := msgpack.Marshal(&c)
	if err != nil {
		return fmt.Errorf("msgpack marshal: %w", err)
	}
	name := checkpointName(dir, t.Index)
	if err := os.WriteFile(name+".tmp", data, 0o644); err != nil {
		return err
	}
	return os.Rename(name+".tmp", name)
}

// errStaleCheckpoint is returned for checkpoints written for another input,
// engine, protocol or seed.
var errStaleCheckpoint = errors.New("checkpoint belongs to another run")

// loadCheckpoint returns trajectory i from dir, or nil if there is no
// checkpoint for it. A checkpoint with a different input digest or seed
// gives errStaleCheckpoint.
func loadCheckpoint(dir string, i int, seed int64, input string) (*Trajectory, error) {
	data, err := os.ReadFile(checkpointName(dir, i))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c checkpoint
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("msgpack unmarshal %s: %w", checkpointName(dir, i), err)
	}
	if c.Version != checkpointVersion || c.Input != input || c.Index != i || c.Seed != seed {
		return nil, errStaleCheckpoint
	}
	if len(c.Atoms) == 0 || len(c.Coords) != 3*len(c.Atoms) {
		return nil, fmt.Errorf("checkpoint %s has %d coordinates for %d atoms", checkpointName(dir, i), len(c.Coords), len(c.Atoms))
	}
	ats := make([]*chem.Atom, len(c.Atoms))
	for j := range c.Atoms {
		ats[j] = &c.Atoms[j]
	}
	coords, err := v3.NewMatrix(c.Coords)
	if err != nil {
		return nil, err
	}
	var bf [][]float64
	if len(c.Bfactors) == len(ats) {
		bf = [][]float64{c.Bfactors}
	}
	mol, err := chem.NewMolecule([]*v3.Matrix{coords}, chem.NewTopology(c.Charge, c.Multi, ats), bf)
	if err != nil {
		return nil, err
	}
	mol.Crystal = c.Crystal
	return &Trajectory{Index: i, Seed: seed, Energy: c.Energy, RMSD: c.RMSD, Elapsed: c.Elapsed, Mol: mol, Resumed: true}, nil
}
