/*
 * files.go, part of postfold.
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
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is a structure file format.
type Format int

const (
	FormatPDB Format = iota
	FormatPDBx
	FormatXYZ
)

func (f Format) String() string {
	switch f {
	case FormatPDBx:
		return "pdbx"
	case FormatXYZ:
		return "xyz"
	}
	return "pdb"
}

// splitName returns the format implied by the name of a file, and the
// compression extension ("gz", "zst" or "") if any.
func splitName(name string) (Format, string) {
	lname := strings.ToLower(name)
	compression := ""
	switch filepath.Ext(lname) {
	case ".gz":
		compression = "gz"
	case ".zst", ".zstd":
		compression = "zst"
	}
	if compression != "" {
		lname = strings.TrimSuffix(lname, filepath.Ext(lname))
	}
	switch filepath.Ext(lname) {
	case ".cif", ".mmcif", ".pdbx":
		return FormatPDBx, compression
	case ".xyz":
		return FormatXYZ, compression
	}
	return FormatPDB, compression
}

// FormatFromName returns the structure format implied by the file name,
// ignoring any compression extension.
func FormatFromName(name string) Format {
	f, _ := splitName(name)
	return f
}

// closers closes a compressor and then the underlying file.
type closers struct {
	io.Reader
	io.Writer
	cl []io.Closer
}

func (c *closers) Close() error {
	var first error
	for _, v := range c.cl {
		if err := v.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenFile opens name for reading, decompressing it on the fly if it
// has a .gz or .zst extension.
func OpenFile(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, CError{err.Error(), []string{"os.Open", "OpenFile"}}
	}
	_, comp := splitName(name)
	switch comp {
	case "gz":
		gz, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, CError{fmt.Sprintf("%s: %s", name, err), []string{"gzip.NewReader", "OpenFile"}}
		}
		return &closers{Reader: gz, cl: []io.Closer{gz, f}}, nil
	case "zst":
		zs, err := zstd.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, CError{fmt.Sprintf("%s: %s", name, err), []string{"zstd.NewReader", "OpenFile"}}
		}
		rc := zs.IOReadCloser()
		return &closers{Reader: rc, cl: []io.Closer{rc, f}}, nil
	}
	return f, nil
}

// CreateFile creates name for writing, compressing the output if the name
// has a .gz or .zst extension. The returned WriteCloser must be closed to
// flush the compressor.
func CreateFile(name string) (io.WriteCloser, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, CError{err.Error(), []string{"os.Create", "CreateFile"}}
	}
	_, comp := splitName(name)
	switch comp {
	case "gz":
		gz := gzip.NewWriter(f)
		return &closers{Writer: gz, cl: []io.Closer{gz, f}}, nil
	case "zst":
		zs, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, CError{err.Error(), []string{"zstd.NewWriter", "CreateFile"}}
		}
		return &closers{Writer: zs, cl: []io.Closer{zs, f}}, nil
	}
	return f, nil
}

// ReadFile reads the structure file name, choosing the parser from the
// file extension. PDB is assumed for unknown extensions.
func ReadFile(name string) (*Molecule, error) {
	in, err := OpenFile(name)
	if err != nil {
		return nil, errDecorate(err, "ReadFile")
	}
	defer in.Close()
	var mol *Molecule
	switch FormatFromName(name) {
	case FormatPDBx:
		mol, err = PDBxRead(in)
	case FormatXYZ:
		mol, err = XYZRead(in)
	default:
		mol, err = PDBRead(in)
	}
	if err != nil {
		return nil, errDecorate(err, "ReadFile "+name)
	}
	return mol, nil
}

// WriteFile writes all the conformations of mol to the structure file name,
// choosing the format from the file extension. PDB is assumed for unknown extensions.
func WriteFile(name string, mol *Molecule) error {
	out, err := CreateFile(name)
	if err != nil {
		return errDecorate(err, "WriteFile")
	}
	switch FormatFromName(name) {
	case FormatPDBx:
		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		err = PDBxWrite(out, mol.Coords, mol, mol.Bfactors, base)
	case FormatXYZ:
		err = XYZWrite(out, mol.Coords[0], mol)
	default:
		err = PDBWrite(out, mol)
	}
	if err != nil {
		out.Close()
		return errDecorate(err, "WriteFile "+name)
	}
	if err := out.Close(); err != nil {
		return errDecorate(err, "WriteFile "+name)
	}
	return nil
}
