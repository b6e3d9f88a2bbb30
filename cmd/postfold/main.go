/*
 * main.go, part of postfold.
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

// postfold relaxes a predicted protein structure several times, keeps the
// lowest-energy result and copies the per-residue confidence stored in the
// CA b-factors of the prediction to every atom of the residue.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/postfold/postfold/chem"
	"github.com/postfold/postfold/chemplot"
	"github.com/postfold/postfold/clash"
	"github.com/postfold/postfold/config"
	"github.com/postfold/postfold/relax"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	// Use a minimal logger until the configured one is set.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "postfold:", err)
		os.Exit(1)
	}
}

// paths are the files a run reads and writes.
type paths struct {
	input, output string
	scorefile     string
	summary       string
	plot, funnel  string
	ensemble      string
}

func newRootCmd(logw io.Writer) *cobra.Command {
	var (
		p          paths
		configFile string
		noProp     bool
	)
	v := config.New()
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "postfold -i input.pdb -o output.pdb",
		Short: "Relax a predicted structure and keep the lowest-energy model",
		Long: `postfold runs several independent relax trajectories of a predicted protein
structure, writes the one with the lowest energy and copies the per-residue
confidence (pLDDT), stored in the CA b-factors, to every atom of each residue.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			C, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			if noProp {
				C.Propagate = false
			}
			log, err := newLogger(logw, C.Log)
			if err != nil {
				return err
			}
			slog.SetDefault(log)
			return run(cmd.Context(), C, p, log)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&p.input, "input", "i", "", "input structure (PDB or mmCIF, optionally .gz or .zst)")
	f.StringVarP(&p.output, "output", "o", "", "output structure (PDB or mmCIF, optionally .gz or .zst)")
	f.IntP("nstruct", "n", d.NStruct, "number of relax trajectories")
	f.IntP("nproc", "p", d.NProc, "maximum number of trajectories run at the same time")
	f.String("engine", d.Engine, "relax engine: rosetta, xtb or native")
	f.StringVar(&configFile, "config", "", "YAML configuration file")
	f.String("workdir", d.WorkDir, "parent directory for scratch files (default the system temporary directory)")
	f.Bool("keep", d.Keep, "keep the scratch files")
	f.String("checkpoint", d.Checkpoint, "directory to store finished trajectories in and resume them from, needs a fixed --seed")
	f.Int64("seed", d.Seed, "base random seed, trajectory k uses seed+k (0 takes it from the clock)")
	f.Float64("confidence-scale", d.ConfidenceScale, "factor applied to the CA b-factors before propagating them")
	f.BoolVar(&noProp, "no-propagate", false, "don't propagate the CA b-factors")
	f.StringVar(&p.scorefile, "scorefile", "", "write a score table of all trajectories")
	f.StringVar(&p.ensemble, "ensemble", "", "write the relaxed structures of all trajectories as a multi-model file")
	f.StringVar(&p.summary, "summary", "", "write a YAML summary of the run")
	f.StringVar(&p.plot, "plot", "", "plot the energy of each trajectory (png, svg or pdf)")
	f.StringVar(&p.funnel, "funnel", "", "plot energy against CA RMSD to the input (png, svg or pdf)")
	f.String("log-level", d.Log.Level, "debug, info, warn or error")
	f.String("log-format", d.Log.Format, "text or json")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	bindFlags(v, cmd)
	return cmd
}

// bindFlags binds the flags that override configuration keys.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for flag, key := range map[string]string{
		"nstruct":          "nstruct",
		"nproc":            "nproc",
		"engine":           "engine",
		"workdir":          "workdir",
		"keep":             "keep",
		"checkpoint":       "checkpoint",
		"seed":             "seed",
		"confidence-scale": "confidence_scale",
		"log-level":        "log.level",
		"log-format":       "log.format",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err) // only if the flag is not defined
		}
	}
}

func newLogger(w io.Writer, C config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(C.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(C.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// run reads the input, relaxes it, and writes the lowest-energy structure
// and the requested reports.
func run(ctx context.Context, C *config.Config, p paths, log *slog.Logger) error {
	newHandle, err := relax.Engine(C.Engine, C.Engines)
	if err != nil {
		return err
	}
	mol, err := chem.ReadFile(p.input)
	if err != nil {
		return fmt.Errorf("reading %s: %w", p.input, err)
	}
	log.Info("read input", "file", p.input, "atoms", mol.Len(), "residues", len(chem.Residues(mol)))
	engineID, err := relax.EngineID(C.Engine, C.Engines)
	if err != nil {
		return err
	}
	seed := C.Seed
	if seed == 0 {
		seed = time.Now().UnixNano() % (1 << 31)
	}
	P := C.Protocol.Copy()
	out, err := relax.Run(ctx, mol, relax.Options{
		NStruct:    C.NStruct,
		NProc:      C.NProc,
		Name:       jobName(p.input),
		WorkDir:    C.WorkDir,
		Keep:       C.Keep,
		Seed:       seed,
		Protocol:   P,
		NewHandle:  newHandle,
		Logger:     log,
		Checkpoint: C.Checkpoint,
		Engine:     engineID,
	})
	if err != nil {
		return err
	}
	best := out.Best.Mol
	var skipped []chem.Residue
	if C.Propagate {
		skipped, err = chem.PropagateConfidence(best, mol, C.ConfidenceScale)
		if err != nil {
			return fmt.Errorf("propagating confidence: %w", err)
		}
		for _, r := range skipped {
			log.Warn("residue without CA, confidence not propagated", "residue", r.ResidueKey.String(), "name", r.Name)
		}
	}
	if err := chem.WriteFile(p.output, best); err != nil {
		return fmt.Errorf("writing %s: %w", p.output, err)
	}
	log.Info("wrote lowest energy structure", "file", p.output, "trajectory", out.Best.Index, "energy", out.Best.Energy)
	clashes := [2]int{len(clash.Find(mol, 0, clash.DefaultTolerance)), len(clash.Find(best, 0, clash.DefaultTolerance))}
	log.Info("steric clashes", "input", clashes[0], "output", clashes[1])
	if p.ensemble != "" {
		if err := writeEnsemble(p.ensemble, out, mol, C); err != nil {
			return err
		}
		log.Info("wrote all trajectories", "file", p.ensemble, "models", len(out.Trajectories))
	}
	return reports(C, P, p, out, skipped, clashes)
}

func writeEnsemble(name string, out *relax.Outcome, ref *chem.Molecule, C *config.Config) error {
	ens, err := out.Ensemble()
	if err != nil {
		return err
	}
	if C.Propagate {
		if _, err := chem.PropagateConfidence(ens, ref, C.ConfidenceScale); err != nil {
			return fmt.Errorf("propagating confidence: %w", err)
		}
	}
	if err := chem.WriteFile(name, ens); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func reports(C *config.Config, P *relax.Protocol, p paths, out *relax.Outcome, skipped []chem.Residue, clashes [2]int) error {
	if p.scorefile != "" {
		if err := writeTo(p.scorefile, func(w io.Writer) error { return relax.WriteScorefile(w, out) }); err != nil {
			return err
		}
	}
	if p.summary != "" {
		s := relax.NewSummary(out)
		s.Engine = C.Engine
		s.Input = p.input
		s.Output = p.output
		s.NProc = C.NProc
		s.Protocol = P
		s.ClashesIn, s.ClashesOut = clashes[0], clashes[1]
		for _, r := range skipped {
			s.Skipped = append(s.Skipped, r.Name+" "+r.ResidueKey.String())
		}
		if err := writeTo(p.summary, func(w io.Writer) error { return relax.WriteSummary(w, s) }); err != nil {
			return err
		}
	}
	title := fmt.Sprintf("%s, %s", jobName(p.input), C.Engine)
	if p.plot != "" {
		if err := chemplot.EnergyPlot(out.Energies(), out.Best.Index, title, p.plot); err != nil {
			return fmt.Errorf("plotting energies: %w", err)
		}
	}
	if p.funnel != "" {
		rmsd := make([]float64, len(out.Trajectories))
		for i, t := range out.Trajectories {
			rmsd[i] = t.RMSD
		}
		if err := chemplot.FunnelPlot(rmsd, out.Energies(), out.Best.Index, title, p.funnel); err != nil {
			return fmt.Errorf("plotting funnel: %w", err)
		}
	}
	return nil
}

func writeTo(name string, write func(io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return f.Close()
}

// jobName is the input file name without directories or extensions.
func jobName(input string) string {
	name := filepath.Base(input)
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
