/*
 * chem_test.go, part of postfold.
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
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	v3 "github.com/postfold/postfold/v3"
)

func readPeptide(Te *testing.T) *Molecule {
	Te.Helper()
	mol, err := PDBFileRead("testdata/peptide.pdb")
	if err != nil {
		Te.Fatal(err)
	}
	return mol
}

func TestPDBIO(Te *testing.T) {
	mol := readPeptide(Te)
	if mol.Len() != 18 {
		Te.Fatalf("expected 18 atoms, got %d", mol.Len())
	}
	if !strings.HasPrefix(mol.Crystal, "CRYST1   50.000") {
		Te.Errorf("CRYST1 record not kept: %q", mol.Crystal)
	}
	zn := mol.Atom(17)
	if !zn.Het || zn.Symbol != "Zn" || zn.MolID != 101 {
		Te.Errorf("bad HETATM: %+v", zn)
	}
	ca := mol.Atom(1)
	if ca.Name != "CA" || ca.Symbol != "C" || ca.MolName1 != 'A' || ca.Chain != "A" {
		Te.Errorf("bad CA: %+v", ca)
	}
	if mol.Bfactors[0][1] != 0.91 {
		Te.Errorf("bad b-factor %v", mol.Bfactors[0][1])
	}
	var buf bytes.Buffer
	if err := PDBWrite(&buf, mol); err != nil {
		Te.Fatal(err)
	}
	if !strings.Contains(buf.String(), "ATOM      2  CA  ALA A   1      -0.001   0.064  -0.491  1.00  0.91           C") {
		Te.Errorf("unexpected PDB line format:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "HETATM   18 ZN    ZN A 101") {
		Te.Errorf("unexpected HETATM line format:\n%s", buf.String())
	}
	mol2, err := PDBRead(&buf)
	if err != nil {
		Te.Fatal(err)
	}
	if r, _ := RMSD(mol.Coords[0], mol2.Coords[0]); r > 1e-3 {
		Te.Errorf("coordinates changed on a write/read cycle, RMSD %v", r)
	}
	if mol2.Crystal != mol.Crystal {
		Te.Errorf("CRYST1 lost on a write/read cycle: %q", mol2.Crystal)
	}
}

func TestMultiModel(Te *testing.T) {
	mol := readPeptide(Te)
	second := mol.Coords[0].Clone()
	second.Scale(2, second)
	mol.Coords = append(mol.Coords, second)
	mol.Bfactors = append(mol.Bfactors, make([]float64, mol.Len()))
	var buf bytes.Buffer
	if err := PDBWrite(&buf, mol); err != nil {
		Te.Fatal(err)
	}
	if c := strings.Count(buf.String(), "ENDMDL"); c != 2 {
		Te.Errorf("expected 2 models, got %d", c)
	}
	mol2, err := PDBRead(&buf)
	if err != nil {
		Te.Fatal(err)
	}
	if len(mol2.Coords) != 2 || mol2.Len() != mol.Len() {
		Te.Fatalf("expected 2 frames of %d atoms, got %d of %d", mol.Len(), len(mol2.Coords), mol2.Len())
	}
	if math.Abs(mol2.Coords[1].At(2, 0)-2*mol.Coords[0].At(2, 0)) > 1e-3 {
		Te.Errorf("second frame not read correctly")
	}
}

func TestBadPDB(Te *testing.T) {
	if _, err := PDBRead(strings.NewReader("REMARK nothing here\nEND\n")); err == nil {
		Te.Error("a PDB without atoms should fail")
	}
	bad := "ATOM      1  N   ALA A   1      -0.677  xx.230  -0.491  1.00  0.82           N\n"
	if _, err := PDBRead(strings.NewReader(bad)); err == nil {
		Te.Error("bad coordinates should fail")
	} else if !strings.Contains(err.Error(), "line 1") {
		Te.Errorf("error should report the line: %v", err)
	}
}

func TestCompressedIO(Te *testing.T) {
	mol := readPeptide(Te)
	dir := Te.TempDir()
	for _, name := range []string{"out.pdb.gz", "out.pdb.zst", "out.cif", "out.cif.gz"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, mol); err != nil {
			Te.Fatalf("%s: %v", name, err)
		}
		mol2, err := ReadFile(path)
		if err != nil {
			Te.Fatalf("%s: %v", name, err)
		}
		if mol2.Len() != mol.Len() {
			Te.Errorf("%s: expected %d atoms, got %d", name, mol.Len(), mol2.Len())
		}
		if mol2.Bfactors[0][6] != mol.Bfactors[0][6] {
			Te.Errorf("%s: b-factor lost: %v", name, mol2.Bfactors[0][6])
		}
		if mol2.Atom(14).Name != "OG" || mol2.Atom(14).MolID != 3 {
			Te.Errorf("%s: bad atom %+v", name, mol2.Atom(14))
		}
	}
}

func TestXYZIO(Te *testing.T) {
	mol := readPeptide(Te)
	var buf bytes.Buffer
	if err := XYZWrite(&buf, mol.Coords[0], mol); err != nil {
		Te.Fatal(err)
	}
	mol2, err := XYZRead(&buf)
	if err != nil {
		Te.Fatal(err)
	}
	if mol2.Len() != mol.Len() || mol2.Atom(17).Symbol != "Zn" {
		Te.Errorf("bad XYZ read: %d atoms, last %+v", mol2.Len(), mol2.Atom(17))
	}
	if _, err := XYZRead(strings.NewReader("3\ncomment\nC 0 0 0\n")); err == nil {
		Te.Error("a truncated XYZ file should fail")
	}
}

func TestResidues(Te *testing.T) {
	mol := readPeptide(Te)
	res := Residues(mol)
	if len(res) != 5 {
		Te.Fatalf("expected 5 residues, got %d", len(res))
	}
	if res[1].Name != "GLY" || len(res[1].Atoms) != 4 || res[1].AtomIndex(mol, "CA") != 6 {
		Te.Errorf("bad residue %+v", res[1])
	}
	ca := CAIndexes(mol)
	if len(ca) != 3 {
		Te.Errorf("expected 3 CA atoms outside placeholders, got %d", len(ca))
	}
}

const modifiedPDB = `ATOM      1  N   ALA A   1       0.000   0.000   0.000  1.00  0.80           N  
ATOM      2  CA  ALA A   1       1.450   0.000   0.000  1.00  0.90           C  
HETATM    3  N   MSE A   2       2.500   1.000   0.000  1.00  0.70           N  
HETATM    4  CA  MSE A   2       3.900   1.000   0.000  1.00  0.75           C  
HETATM    5 SE   MSE A   2       4.500   2.500   0.000  1.00  0.60          SE  
HETATM    6 CA    CA A 101       9.000   9.000   9.000  1.00  0.50          CA  
END
`

// Selenomethionine is a HETATM residue with a CA atom, and so is a calcium ion.
func TestModifiedResidues(Te *testing.T) {
	mol, err := PDBRead(strings.NewReader(modifiedPDB))
	if err != nil {
		Te.Fatal(err)
	}
	ca := CAIndexes(mol)
	if len(ca) != 2 || ca[ResidueKey{Chain: "A", ID: 2}] != 3 {
		Te.Errorf("expected the ALA and MSE alpha carbons, got %v", ca)
	}
	if _, ok := ca[ResidueKey{Chain: "A", ID: 101}]; ok {
		Te.Error("the calcium ion was taken for an alpha carbon")
	}
	skipped, err := PropagateConfidence(mol, nil, DefaultConfidenceScale)
	if err != nil {
		Te.Fatal(err)
	}
	want := []float64{90, 90, 75, 75, 75, 0.5}
	for i, w := range want {
		if mol.Bfactors[0][i] != w {
			Te.Errorf("atom %d: expected b-factor %v, got %v", i, w, mol.Bfactors[0][i])
		}
	}
	if len(skipped) != 1 || skipped[0].Name != "CA" {
		Te.Errorf("expected the calcium to be skipped, got %+v", skipped)
	}
}

func TestPropagateConfidence(Te *testing.T) {
	mol := readPeptide(Te)
	skipped, err := PropagateConfidence(mol, nil, DefaultConfidenceScale)
	if err != nil {
		Te.Fatal(err)
	}
	want := []float64{91, 91, 91, 91, 91, 88, 88, 88, 88, 46, 46, 46, 46, 46, 46, 0.33, 0.33, 0.55}
	for i, w := range want {
		if mol.Bfactors[0][i] != w {
			Te.Errorf("atom %d: expected b-factor %v, got %v", i, w, mol.Bfactors[0][i])
		}
	}
	if len(skipped) != 1 || skipped[0].Name != "ZN" {
		Te.Errorf("expected the ZN residue to be skipped, got %+v", skipped)
	}
}

func TestPropagateConfidenceFromReference(Te *testing.T) {
	ref := readPeptide(Te)
	// A relaxed structure with an extra hydrogen and no b-factors.
	ats := ref.CopyAtoms()
	ats.Atoms = append(ats.Atoms[:2:2], append([]*Atom{{Name: "HA", MolName: "ALA", MolID: 1, Chain: "A", Symbol: "H"}}, ats.Atoms[2:]...)...)
	coords := v3.Zeros(ats.Len())
	mol, err := NewMolecule([]*v3.Matrix{coords}, ats, nil)
	if err != nil {
		Te.Fatal(err)
	}
	if _, err := PropagateConfidence(mol, ref, 10); err != nil {
		Te.Fatal(err)
	}
	if mol.Bfactors[0][2] != 9.1 {
		Te.Errorf("hydrogen should get the CA value times 10, got %v", mol.Bfactors[0][2])
	}
	if mol.Bfactors[0][7] != 8.8 {
		Te.Errorf("GLY CA should get 8.8, got %v", mol.Bfactors[0][7])
	}
}

func TestRounding(Te *testing.T) {
	mol := readPeptide(Te)
	mol.Bfactors[0][1] = 0.123456
	if _, err := PropagateConfidence(mol, nil, 100); err != nil {
		Te.Fatal(err)
	}
	if mol.Bfactors[0][4] != 12.35 {
		Te.Errorf("expected 12.35, got %v", mol.Bfactors[0][4])
	}
}

func TestRMSD(Te *testing.T) {
	mol := readPeptide(Te)
	moved := mol.Copy()
	// a rotation of 90 degrees around z and a translation
	c := moved.Coords[0]
	for i := 0; i < c.NVecs(); i++ {
		x, y := c.At(i, 0), c.At(i, 1)
		c.Set(i, 0, -y+3)
		c.Set(i, 1, x-1)
		c.Set(i, 2, c.At(i, 2)+5)
	}
	r, err := RMSD(mol.Coords[0], moved.Coords[0])
	if err != nil {
		Te.Fatal(err)
	}
	if r > 1e-6 {
		Te.Errorf("RMSD of a rigid-body moved structure should be 0, got %v", r)
	}
	c.Set(1, 0, c.At(1, 0)+1)
	r, err = CARMSD(mol, moved)
	if err != nil {
		Te.Fatal(err)
	}
	if r < 0.1 || r > 1 {
		Te.Errorf("unexpected CA RMSD %v", r)
	}
	if _, err := RMSD(mol.Coords[0], v3.Zeros(2)); err == nil {
		Te.Error("mismatched sets should fail")
	}
}
