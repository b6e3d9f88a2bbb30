/*
 * confidence.go, part of postfold.
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

import "math"

// PlaceholderResidue is the name given to residues of unknown identity.
// They carry no confidence to propagate.
const PlaceholderResidue = "XXX"

// DefaultConfidenceScale turns pLDDT values in the 0-1 range, as written by
// RoseTTAFold, into the 0-100 range AlphaFold uses.
const DefaultConfidenceScale = 100.0

// PropagateConfidence sets the b-factor of every atom of each residue of mol to the
// b-factor of the CA atom of the same residue in ref, multiplied by scale and rounded
// to two decimals. If ref is nil, mol itself is used as the source. Residues are
// matched by chain, number and insertion code, so ref can have a different topology
// (e.g. no hydrogens). Residues called PlaceholderResidue are left alone. Residues
// without a CA in ref are left alone and returned.
// All the conformations in mol get the same values.
func PropagateConfidence(mol, ref *Molecule, scale float64) ([]Residue, error) {
	if mol == nil || len(mol.Coords) == 0 {
		return nil, CError{"Nothing to annotate", []string{"PropagateConfidence"}}
	}
	if ref == nil {
		ref = mol
	}
	if len(ref.Bfactors) == 0 {
		return nil, CError{"Reference has no b-factors", []string{"PropagateConfidence"}}
	}
	if err := mol.fillBfactors(); err != nil {
		return nil, errDecorate(err, "PropagateConfidence")
	}
	// The values are collected before any is changed, as ref can be mol.
	ca := make(map[ResidueKey]float64)
	for key, i := range CAIndexes(ref) {
		ca[key] = ref.Bfactors[0][i]
	}
	var skipped []Residue
	for _, res := range Residues(mol) {
		if res.Name == PlaceholderResidue {
			continue
		}
		b, ok := ca[res.ResidueKey]
		if !ok {
			skipped = append(skipped, res)
			continue
		}
		b = math.Round(b*scale*100) / 100
		for _, bf := range mol.Bfactors {
			for _, i := range res.Atoms {
				bf[i] = b
			}
		}
	}
	return skipped, nil
}
