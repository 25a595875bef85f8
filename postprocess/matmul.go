package postprocess

import (
	"runtime"
	"sync"
)

// maskValue marks object pixels of a binary mask
const maskValue = 255

// protoMasks combines the prototype masks of a segmentation head, of
// channels x area values, with the coefficients of each box and writes a
// binary mask of area pixels per box into masks. A pixel belongs to the
// object when its logit is positive. Boxes are spread over workers.
func protoMasks(coeffs, protos []float32, boxes, channels, area, workers int, masks []uint8) {

	if workers < 1 {
		workers = 1
	}

	if workers > boxes {
		workers = boxes
	}

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for b := w; b < boxes; b += workers {
				coeff := coeffs[b*channels : (b+1)*channels]
				mask := masks[b*area : (b+1)*area]

				for px := range mask {
					var logit float32

					for k, c := range coeff {
						logit += c * protos[k*area+px]
					}

					if logit > 0 {
						mask[px] = maskValue
					}
				}
			}
		}(w)
	}

	wg.Wait()
}

// maskWorkers returns the worker count used for boxes masks, a single
// worker up to parallelAbove boxes
func maskWorkers(boxes, parallelAbove int) int {

	if boxes <= parallelAbove {
		return 1
	}

	return runtime.NumCPU()
}
