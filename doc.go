/*
go-geoai runs neural network detectors over aerial, satellite and vehicle
mounted 360° panoramic imagery and turns the raw per-tile predictions into
georeferenced vector layers.

The root package holds the pieces shared by every stage of a run: the model
descriptions and their grouping into model sets, the inference backend
contract with its KServe v2 HTTP implementation, tile batching, the feature
record and the typed errors.

Stages live in sub packages:

	geo         pixel <-> world transforms, world files, CRS reprojection
	preprocess  image scaling and overlapping tiling
	postprocess model output decoders producing per tile predictions
	dispatch    multi scale model set inference over one image
	stitch      joining of objects split by tile seams
	reconcile   duplicate suppression and no-data clipping
	panorama    360° image and LiDAR fusion
	change      change detection between two runs
	export      shapefiles, JSON digest and world file output
	pipeline    end to end aerial, panorama, compare and merge runs

See cmd/geoai for the command line entry point.
*/
package geoai
