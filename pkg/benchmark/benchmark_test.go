package benchmark

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/storage"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newArray returns a 6x6 uint16 array in 2x4 chunks with crc32c checksums.
func newArray(t *testing.T) *zarr.Array {
	t.Helper()
	ctx := context.Background()
	b := zarr.NewArrayBuilder([]uint64{6, 6}, zarr.Uint16, []uint64{2, 4}, nil)
	b.BytesToBytesCodecs = []zarr.CodecMetadata{{Name: "crc32c"}}
	arr, err := b.Build(storage.NewMemoryStore(), "/")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := arr.StoreMetadata(ctx); err != nil {
		t.Fatalf("StoreMetadata: %v", err)
	}
	values := make([]float64, 36)
	for i := range values {
		values[i] = float64(i + 1)
	}
	if err := arr.StoreSubset(ctx, zarr.SubsetWithShape(arr.Shape()), zarr.EncodeFloat64(zarr.Uint16, values), zarr.CodecOptions{}); err != nil {
		t.Fatalf("StoreSubset: %v", err)
	}
	return arr
}

func TestRead(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want uint64
	}{
		{"sync", Options{Mode: ModeSync}, 96},
		{"default mode", Options{ConcurrentChunks: 1}, 96},
		{"async", Options{Mode: ModeAsync, ConcurrentChunks: 2}, 96},
		{"async as sync", Options{Mode: ModeAsyncAsSync, ConcurrentChunks: 3}, 96},
		{"read all", Options{Mode: ModeSync, ReadAll: true}, 72},
		{"read all async", Options{Mode: ModeAsync, ReadAll: true}, 72},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Read(context.Background(), newArray(t), tt.opts)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if res.BytesDecoded != tt.want {
				t.Errorf("BytesDecoded = %d, want %d", res.BytesDecoded, tt.want)
			}
			if async := res.Mode == ModeAsync; async != (res.StoredSize > 0) {
				t.Errorf("mode %s: StoredSize = %d", res.Mode, res.StoredSize)
			}
		})
	}
}

func TestRead_Checksums(t *testing.T) {
	ctx := context.Background()
	for _, mode := range Modes {
		t.Run(mode, func(t *testing.T) {
			arr := newArray(t)
			key := arr.ChunkKey([]uint64{1, 1})
			enc, err := arr.Store().Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			enc[0] ^= 0xff
			if err := arr.Store().Set(ctx, key, enc); err != nil {
				t.Fatalf("Set: %v", err)
			}

			if _, err := Read(ctx, arr, Options{Mode: mode}); !errors.Is(err, errors.ErrCodeChecksumMismatch) {
				t.Errorf("Read() error = %v, want code %s", err, errors.ErrCodeChecksumMismatch)
			}
			if _, err := Read(ctx, arr, Options{Mode: mode, IgnoreChecksums: true}); err != nil {
				t.Errorf("Read(IgnoreChecksums) error = %v", err)
			}
		})
	}
}

func TestRead_InvalidMode(t *testing.T) {
	_, err := Read(context.Background(), newArray(t), Options{Mode: "threads"})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Read() error = %v, want code %s", err, errors.ErrCodeInvalidInput)
	}
}

func TestResult_Summary(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{
			name: "sync",
			res:  Result{Mode: ModeSync, Duration: 500 * time.Millisecond, BytesDecoded: 1_000_000_000},
			want: "Decoded in.zarr in 500.00ms (1000.00MB decoded @ 2.00GB/s)",
		},
		{
			name: "async",
			res:  Result{Mode: ModeAsync, Duration: time.Second, BytesDecoded: 3_000_000, StoredSize: 1_500_000},
			want: "Decoded in.zarr (1.50MB) in 1000.00ms (3.00MB decoded @ 0.00GB/s)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Summary("in.zarr"); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFuture_Wait(t *testing.T) {
	f := Go(func() (string, error) { return "ok", nil })
	if got, err := f.Wait(context.Background()); err != nil || got != "ok" {
		t.Errorf("Wait() = %q, %v", got, err)
	}

	release := make(chan struct{})
	blocked := Go(func() (int, error) { <-release; return 1, nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := blocked.Wait(ctx); err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Errorf("Wait(canceled) error = %v", err)
	}
	close(release)
	if got, _ := blocked.Wait(context.Background()); got != 1 {
		t.Errorf("Wait() after release = %d, want 1", got)
	}
}
