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

// Package relax runs independent relax trajectories of a structure and
// selects the one with the lowest energy.
//
// A trajectory is run by a Handle, which wraps an engine: the Rosetta relax
// application, an xtb optimization or a built-in restrained minimizer.
// Handles follow the same pattern: SetName and SetDir, BuildInput, Run, and
// then Energy and RelaxedStructure. Run executes the trajectories in a
// bounded pool, each in its own scratch directory.
package relax
