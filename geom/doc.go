// Package geom provides the planar polygon algebra shared by the stitcher,
// reconciler and change detector. Geometries are orb types; boolean
// operations and offsetting are executed by the Clipper library on integer
// coordinates scaled to preserve sub-unit precision.
package geom
