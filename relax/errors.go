/*
 * errors.go, part of postfold.
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
	"errors"
	"fmt"
	"strings"
)

// Engine names
const (
	Rosetta = "rosetta"
	XTB     = "xtb"
	Native  = "native"
)

// Sentinel errors. Error values returned by this package match them with errors.Is.
var (
	ErrBadCount   = errors.New("count must be at least 1")
	ErrNoEnergy   = errors.New("couldn't obtain energy")
	ErrNoGeometry = errors.New("couldn't obtain relaxed structure")
	ErrNotRunning = errors.New("couldn't run the engine")
	ErrCantInput  = errors.New("couldn't build input")
	ErrNoEngine   = errors.New("unknown engine")
	ErrEmpty      = errors.New("no energies to select from")
)

// Error is the error type of the relax package. It keeps the engine and the
// job that failed, so that a failure in one of many parallel trajectories
// can be traced to its scratch directory.
type Error struct {
	kind       error
	engine     string
	inputname  string
	additional string
	deco       []string
	critical   bool
}

func (err Error) Error() string {
	msg := fmt.Sprintf("%s: %s job %s: %s", strings.Join(err.deco, ": "), err.engine, err.inputname, err.kind)
	if err.additional != "" {
		msg += ": " + err.additional
	}
	return msg
}

// Unwrap returns the sentinel error describing the failure.
func (err Error) Unwrap() error { return err.kind }

// Decorate will add the dec string to the decoration slice of strings of the error,
// and return the resulting slice.
func (err Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append([]string{dec}, err.deco...)
	}
	return err.deco
}

// Critical returns whether the error is critical or it can be ignored
func (err Error) Critical() bool { return err.critical }

// Engine returns the name of the engine that failed.
func (err Error) Engine() string { return err.engine }

// InputName returns the job name of the failed calculation.
func (err Error) InputName() string { return err.inputname }
