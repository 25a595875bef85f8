// Command geoai runs detection, 360° fusion, change detection and merge
// tasks against a KServe inference server.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
