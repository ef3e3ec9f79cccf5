package buildinfo

import (
	"strings"
	"testing"
)

func TestStrings(t *testing.T) {
	if got := Short(); got != "zarrtools dev (zarr v3)" {
		t.Errorf("Short() = %q", got)
	}
	for _, s := range []string{String(), Template()} {
		if !strings.Contains(s, "zarr format: 3") {
			t.Errorf("%q does not mention the zarr format", s)
		}
	}
}
