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

package chem

import (
	"fmt"
	"strings"
)

// Error is the interface for errors that the packages in postfold implement.
// The Decorate method allows to add and retrieve info from the error without
// changing its type or wrapping it around something else.
type Error interface {
	Error() string
	Decorate(string) []string
}

// CError is the general error type of the chem package.
type CError struct {
	msg  string
	deco []string
}

func (err CError) Error() string {
	if len(err.deco) == 0 {
		return err.msg
	}
	return fmt.Sprintf("%s: %s", strings.Join(err.deco, ": "), err.msg)
}

// Decorate will add the dec string to the decoration slice of strings of the error,
// and return the resulting slice.
func (err CError) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append([]string{dec}, err.deco...)
	}
	return err.deco
}

// errDecorate decorates err with the caller's name if err implements Error,
// otherwise it wraps it.
func errDecorate(err error, caller string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(CError); ok {
		e.deco = e.Decorate(caller)
		return e
	}
	return fmt.Errorf("%s: %w", caller, err)
}

// PanicMsg is a message used for panics, even though it does satisfy the error interface.
// For errors use CError.
type PanicMsg string

func (v PanicMsg) Error() string { return string(v) }

const (
	ErrNilAtom        = PanicMsg("postfold: Attempted to copy a nil atom")
	ErrAtomOutOfRange = PanicMsg("postfold: Requested/Set Atom out of range")
)
