/*
 * atomicdata.go, part of postfold.
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
	"strings"
	"unicode"
)

// Conversion factors
const (
	H2Kcal  = 627.509 // Hartree to kcal/mol
	KJ2Kcal = 1 / 4.184
)

// A map for assigning mass to elements.
// Note that just common "bio-elements" are present
var symbolMass = map[string]float64{
	"H":  1.008,
	"C":  12.01,
	"O":  16.00,
	"N":  14.01,
	"P":  30.97,
	"S":  32.06,
	"Se": 78.96,
	"K":  39.1,
	"Ca": 40.08,
	"Mg": 24.30,
	"Cl": 35.45,
	"Na": 22.99,
	"Cu": 63.55,
	"Zn": 65.38,
	"Co": 58.93,
	"Fe": 55.84,
	"Mn": 54.94,
}

// A map between 3-letters name for aminoacidic residues to the corresponding 1-letter names.
var three2OneLetter = map[string]byte{
	"SER": 'S',
	"THR": 'T',
	"ASN": 'N',
	"GLN": 'Q',
	"SEC": 'U', //Selenocysteine!
	"CYS": 'C',
	"CYX": 'C', // disulfide-bonded
	"CYD": 'C', // Rosetta's disulfide cysteine
	"GLY": 'G',
	"PRO": 'P',
	"ALA": 'A',
	"VAL": 'V',
	"ILE": 'I',
	"LEU": 'L',
	"MET": 'M',
	"MSE": 'M',
	"PHE": 'F',
	"TYR": 'Y',
	"TRP": 'W',
	"ARG": 'R',
	"HIS": 'H',
	"HIE": 'H',
	"HID": 'H',
	"HIP": 'H',
	"LYS": 'K',
	"ASP": 'D',
	"GLU": 'E',
}

// Mass returns the mass for the element symbol, or 0 if unknown.
func Mass(symbol string) float64 {
	return symbolMass[symbol]
}

// OneLetter returns the one-letter code for a residue name, or 'X'.
func OneLetter(molname string) byte {
	if b, ok := three2OneLetter[molname]; ok {
		return b
	}
	return 'X'
}

// symbolFromName tries to guess a chemical element symbol from a PDB atom name.
// It only deals with some common bio-elements. Rosetta and AMBER
// hydrogen names (1HB, HB2, ...) are recognized.
func symbolFromName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if unicode.IsDigit(rune(name[0])) {
		name = name[1:]
		if name == "" {
			return ""
		}
	}
	if len(name) == 4 && name[0] == 'H' {
		return "H"
	}
	switch name {
	case "CU":
		return "Cu"
	case "CO":
		return "Co"
	case "CL":
		return "Cl"
	case "NA":
		return "Na"
	case "SE":
		return "Se"
	case "ZN":
		return "Zn"
	case "FE":
		return "Fe"
	case "MG":
		return "Mg"
	case "MN":
		return "Mn"
	case "CA":
		// Either calcium or an alpha carbon. Calcium gets its own HETATM residue.
		return "C"
	}
	switch name[0] {
	case 'H':
		return "H"
	case 'C':
		return "C"
	case 'N':
		return "N"
	case 'O':
		return "O"
	case 'P':
		return "P"
	case 'S':
		return "S"
	case 'K':
		return "K"
	}
	return ""
}

// fixSymbol normalizes an element symbol as read from columns 77-78 of a PDB file.
func fixSymbol(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return s
	}
	if len(s) == 1 {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
