package convert

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary formats a completed conversion to path that read bytesRead bytes
// from its source and stored size bytes.
func Summary(path string, d time.Duration, bytesRead, size uint64) string {
	gbps := math.Inf(1)
	if d > 0 {
		gbps = float64(bytesRead) / 1e9 / d.Seconds()
	}
	var pct float64
	if bytesRead > 0 {
		pct = 100 * float64(size) / float64(bytesRead)
	}
	return fmt.Sprintf("Output %s in %.2fms (%.2f GB/s) [%s -> %s (%.2f%%)]",
		path, d.Seconds()*1e3, gbps, humanize.Bytes(bytesRead), humanize.Bytes(size), pct)
}
