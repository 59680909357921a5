package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/daxm-data/strain.report/internal/daxm"
)

// demoVoxel builds a synthetic voxel: random strain-free vectors, a
// random reciprocal deformation of scale eps applied to them, and all
// but fullLength columns renormalized to unit length the way the
// beamline records most reflections. Returns the voxel and the
// real-space gradient that produced it.
func demoVoxel(rng *rand.Rand, cols, fullLength int, eps float64) (*daxm.Voxel, *mat.Dense, error) {
	fstar := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d := eps * (1 - 2*rng.Float64())
			if i == j {
				d++
			}
			fstar.Set(i, j, d)
		}
	}

	// Column lengths in [1.2, 2.2] so only the renormalized columns
	// classify as unit recordings.
	planes := mat.NewDense(3, cols, nil)
	for j := 0; j < cols; j++ {
		dir := []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		scale := (1.2 + rng.Float64()) / floats.Norm(dir, 2)
		for i := 0; i < 3; i++ {
			planes.Set(i, j, dir[i]*scale)
		}
	}

	var q mat.Dense
	q.Mul(fstar, planes)
	col := make([]float64, 3)
	for j := 0; j < cols-fullLength; j++ {
		for i := 0; i < 3; i++ {
			col[i] = q.At(i, j)
		}
		floats.Scale(1/floats.Norm(col, 2), col)
		for i := 0; i < 3; i++ {
			q.Set(i, j, col[i])
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(fstar); err != nil {
		return nil, nil, fmt.Errorf("synthetic gradient not invertible: %w", err)
	}
	var ftrue mat.Dense
	ftrue.CloneFrom(inv.T())

	v := daxm.NewVoxel("demo")
	v.ScatterVecs = &q
	v.Planes = planes
	return v, &ftrue, nil
}

func handleDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	seed := fs.Int64("seed", 42, "Random seed for the synthetic voxel")
	cols := fs.Int("columns", 30, "Scattering vector count")
	fullLength := fs.Int("full-length", 3, "Columns that keep their measured length")
	eps := fs.Float64("eps", 1e-3, "Strain scale of the synthetic gradient")
	fs.Parse(args)

	if *cols < 3 || *fullLength < 0 || *fullLength > *cols {
		fmt.Fprintln(os.Stderr, "Error: need at least 3 columns and 0 <= full-length <= columns")
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	v, ftrue, err := demoVoxel(rng, *cols, *fullLength, *eps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build synthetic voxel: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Synthetic voxel: %d columns, %d unit recordings, strain scale %.1e\n\n",
		*cols, *cols-*fullLength, *eps)
	printTensor("True gradient", ftrue)
	printDeviatoric(ftrue)

	for _, method := range []string{daxm.MethodLeastSquares, daxm.MethodOptimization} {
		solver, err := daxm.SolverFor(method)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		f, err := solver.DeformationGradient(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s solve failed: %v\n", method, err)
			os.Exit(1)
		}

		fmt.Printf("Method %s: |F - F_true| = %.3e\n\n", method, daxm.FrobeniusDistance(f, ftrue))
		printTensor("Recovered gradient", f)
		printDeviatoric(f)
	}
}

func printDeviatoric(f *mat.Dense) {
	dev, err := daxm.Deviatoric(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decompose gradient: %v\n", err)
		os.Exit(1)
	}
	printTensor("Deviatoric part", dev)
}
