// Package daxm contains the voxel domain types and strain math for
// differential-aperture X-ray microscopy (DAXM) reconstructions.
//
// A Voxel bundles everything measured at one probed volume: indexed
// scattering vectors, their Miller plane indices, the reciprocal basis
// of the strain-free lattice, and detector peak positions. Frame
// conversion, vector/plane pairing, and the deformation-gradient
// solvers all operate on that bundle and belong here rather than in
// the storage or transport layers. This keeps the numerics free of SQL
// and HTTP noise and makes the solvers easy to exercise in isolation.
//
// All reference-frame conventions follow the beamline definitions:
// APS (synchrotron laboratory), TSL (EBSD indexing), and XHF (sample
// surface). Rotations between them are passive and share the +x axis.
package daxm
