package reencode

import (
	"fmt"
	"math"
	"time"
)

// Summary formats the result of reencoding inPath to outPath, where sizeIn
// and sizeOut are the stored sizes of the two arrays in bytes.
func (r Result) Summary(inPath, outPath string, sizeIn, sizeOut uint64) string {
	return fmt.Sprintf("Reencode %s to %s\n"+
		"\tread:  ~%.2fms @ %.2fGB/s\n"+
		"\twrite: ~%.2fms @ %.2fGB/s\n"+
		"\ttotal: %.2fms\n"+
		"\tsize:  %.2fMB to %.2fMB (%.2fMB uncompressed)",
		inPath, outPath,
		ms(r.Read), gbps(sizeIn, r.Read),
		ms(r.Write), gbps(sizeOut, r.Write),
		ms(r.Duration),
		float64(sizeIn)/1e6, float64(sizeOut)/1e6, float64(r.BytesDecoded)/1e6)
}

func ms(d time.Duration) float64 { return d.Seconds() * 1e3 }

func gbps(size uint64, d time.Duration) float64 {
	if d <= 0 {
		return math.Inf(1)
	}
	return float64(size) / 1e9 / d.Seconds()
}
