/*
 * handle.go, part of postfold.
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
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/postfold/postfold/chem"
)

// Handle allows to relax a structure using different engines.
// A Handle runs one trajectory; the pool creates one per trajectory.
type Handle interface {

	// SetName sets the name for the job, used for input
	// and output files. The extensions will depend on the engine.
	SetName(name string)

	// SetDir sets the directory where the input is built and the engine runs.
	SetDir(dir string)

	// BuildInput builds the input for the engine based on the first
	// conformation of mol and the protocol P.
	BuildInput(mol *chem.Molecule, P *Protocol) error

	// Run runs the engine for a trajectory previously set, and waits for it
	// to finish. Cancelling ctx kills the engine.
	Run(ctx context.Context) error

	// Energy returns the final energy of the trajectory. Lower is better;
	// units depend on the engine but are the same for all trajectories.
	Energy() (float64, error)

	// RelaxedStructure returns the relaxed structure. ref is the
	// structure given to BuildInput.
	RelaxedStructure(ref *chem.Molecule) (*chem.Molecule, error)
}

// Settings collects the engine-specific settings.
type Settings struct {
	Rosetta RosettaSettings `mapstructure:"rosetta" yaml:"rosetta"`
	XTB     XTBSettings     `mapstructure:"xtb" yaml:"xtb"`
	Native  NativeSettings  `mapstructure:"native" yaml:"native"`
}

// SetDefaults sets the defaults of all the engines.
func (S *Settings) SetDefaults() {
	S.Rosetta.SetDefaults()
	S.XTB.SetDefaults()
	S.Native.SetDefaults()
}

// NewHandleFunc returns a new Handle for each call.
type NewHandleFunc func() Handle

// Engine returns a function creating handles for the named engine.
func Engine(name string, S Settings) (NewHandleFunc, error) {
	switch strings.ToLower(name) {
	case Rosetta:
		return func() Handle { return NewRosettaHandle(S.Rosetta) }, nil
	case XTB:
		return func() Handle { return NewXTBHandle(S.XTB) }, nil
	case Native:
		return func() Handle { return NewNativeHandle(S.Native) }, nil
	}
	return nil, fmt.Errorf("%w: %q (known: %s, %s, %s)", ErrNoEngine, name, Rosetta, XTB, Native)
}

// runCommand runs command with args in dir, sending both standard output and
// standard error to the file logname in dir.
func runCommand(ctx context.Context, dir, logname, command string, args ...string) error {
	logf, err := os.Create(filepath.Join(dir, logname))
	if err != nil {
		return err
	}
	defer logf.Close()
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	cmd.Stdout = logf
	cmd.Stderr = logf
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// searchBackwards returns the last line of the file filename that contains str,
// or an empty string.
func searchBackwards(str, filename string) string {
	f, err := os.Open(filename)
	if err != nil {
		return ""
	}
	defer f.Close()
	last := ""
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), str) {
			last = scanner.Text()
		}
	}
	return last
}
