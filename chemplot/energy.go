/*
 * energy.go, part of postfold.
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

// Package chemplot plots the energies of relax trajectories.
package chemplot

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

func basicPlot(title, xlabel, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	return p
}

// scatter adds one point per (x[i], energies[i]) pair to p, colored by i.
// The point best is drawn larger, with a different glyph. Points with
// NaN coordinates are left out.
func scatter(p *plot.Plot, x, energies []float64, best int) error {
	if len(energies) == 0 {
		return fmt.Errorf("no data to plot")
	}
	if len(x) != len(energies) {
		return fmt.Errorf("%d x values for %d energies", len(x), len(energies))
	}
	temp := make(plotter.XYs, 1)
	for i, e := range energies {
		if math.IsNaN(e) || math.IsNaN(x[i]) {
			continue
		}
		temp[0].X = x[i]
		temp[0].Y = e
		s, err := plotter.NewScatter(temp)
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = colors(i, len(energies))
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		if i == best {
			s.GlyphStyle.Shape = draw.PyramidGlyph{}
			s.GlyphStyle.Radius = 2 * s.GlyphStyle.Radius
			s.GlyphStyle.Color = color.Black
			p.Legend.Add(fmt.Sprintf("lowest (%d)", i), s)
		}
		p.Add(s)
	}
	return nil
}

// EnergyPlot plots the energy of each trajectory against its index, marking
// the selected one, best. The format is given by the extension of plotname
// (png, svg, pdf, eps, jpg or tiff).
func EnergyPlot(energies []float64, best int, title, plotname string) error {
	p := basicPlot(title, "Trajectory", "Energy")
	x := make([]float64, len(energies))
	for i := range x {
		x[i] = float64(i)
	}
	if err := scatter(p, x, energies, best); err != nil {
		return err
	}
	return p.Save(5*vg.Inch, 4*vg.Inch, plotname)
}

// FunnelPlot plots the energy of each trajectory against its CA RMSD to the
// starting structure, marking the selected one, best.
func FunnelPlot(rmsd, energies []float64, best int, title, plotname string) error {
	p := basicPlot(title, "CA RMSD to input (Å)", "Energy")
	if err := scatter(p, rmsd, energies, best); err != nil {
		return err
	}
	return p.Save(5*vg.Inch, 4*vg.Inch, plotname)
}
