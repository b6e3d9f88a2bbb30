/*
 * doc.go, part of postfold.
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

/*
Package chem provides the atom and molecule structures used by postfold,
and facilities for reading and writing the structure files that go in and
out of a relaxation run.

	Reads PDB, PDBx/mmCIF and XYZ files, optionally gzip or zstd compressed.

	Writes PDB, PDBx/mmCIF and XYZ files, keeping the CRYST1 record of the input.

	Groups atoms into residues and propagates per-residue confidence scores
	(pLDDT, stored in the B-factor column) from CA atoms to whole residues.

	Computes the RMSD between two conformations after optimal superposition.

Coordinates are kept in v3.Matrix objects, separated from the atomic
information (the Topology), as different conformations of the same
molecule share a topology.
*/
package chem
