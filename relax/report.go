/*
 * report.go, part of postfold.
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
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// WriteScorefile writes one line per trajectory in the format of Rosetta
// score files, so the usual tools can read it. The selected column is 1
// for the lowest-energy trajectory.
func WriteScorefile(w io.Writer, out *Outcome) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "SEQUENCE: \n")
	fmt.Fprintf(bw, "SCORE: %14s %10s %12s %10s %8s %s\n", "total_score", "rmsd_ca", "seed", "time", "selected", "description")
	for _, t := range out.Trajectories {
		sel := 0
		if t == out.Best {
			sel = 1
		}
		fmt.Fprintf(bw, "SCORE: %14.3f %10.3f %12d %10.1f %8d traj_%04d\n", t.Energy, t.RMSD, t.Seed, t.Elapsed.Seconds(), sel, t.Index)
	}
	return bw.Flush()
}

// Summary describes a finished run.
type Summary struct {
	RunID        string        `yaml:"run_id"`
	Engine       string        `yaml:"engine"`
	Input        string        `yaml:"input"`
	Output       string        `yaml:"output"`
	NStruct      int           `yaml:"nstruct"`
	NProc        int           `yaml:"nproc"`
	Workers      int           `yaml:"workers"`
	Best         int           `yaml:"best"`
	BestEnergy   float64       `yaml:"best_energy"`
	Mean         float64       `yaml:"mean_energy"`
	StdDev       float64       `yaml:"stddev_energy"`
	Max          float64       `yaml:"max_energy"`
	Skipped      []string      `yaml:"skipped_residues,omitempty"`
	ClashesIn    int           `yaml:"clashes_input"`
	ClashesOut   int           `yaml:"clashes_output"`
	Protocol     *Protocol     `yaml:"protocol"`
	Trajectories []*Trajectory `yaml:"trajectories"`
}

// NewSummary fills a summary with the results in out. The remaining
// fields are set by the caller.
func NewSummary(out *Outcome) *Summary {
	s := &Summary{
		RunID:        out.RunID,
		NStruct:      len(out.Trajectories),
		Workers:      out.Workers,
		Trajectories: out.Trajectories,
	}
	e := out.Energies()
	if len(e) == 0 {
		return s
	}
	if out.Best != nil {
		s.Best = out.Best.Index
		s.BestEnergy = out.Best.Energy
	}
	s.Mean = stat.Mean(e, nil)
	if len(e) > 1 {
		s.StdDev = stat.StdDev(e, nil)
	}
	s.Max = floats.Max(e)
	return s
}

// WriteSummary writes s as YAML.
func WriteSummary(w io.Writer, s *Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
