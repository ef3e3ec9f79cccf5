package convert

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync/atomic"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/zarrtools/pkg/errors"
	"github.com/matzehuels/zarrtools/pkg/progress"
	"github.com/matzehuels/zarrtools/pkg/zarr"
)

// Variable is a netCDF variable open for reading.
type Variable interface {
	// Shape is the size of each dimension.
	Shape() []int64
	Dimensions() []string
	// GoType names the Go element type of the values returned by GetSlice.
	GoType() string
	// GetSlice returns rows [begin, end) along the first dimension as a
	// (possibly nested) slice.
	GetSlice(begin, end int64) (any, error)
	Close()
}

// Opener opens the named variable of a netCDF file.
type Opener func(path, variable string) (Variable, error)

type ncVariable struct {
	api.VarGetter
	group api.Group
}

func (v *ncVariable) Close() { v.group.Close() }

// OpenVariable opens a variable with the native netCDF reader. Both classic
// and netCDF-4 (HDF5) files are supported.
func OpenVariable(path, variable string) (Variable, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open netCDF file %s", path)
	}
	vg, err := g.GetVarGetter(variable)
	if err != nil {
		g.Close()
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "variable %q not found in %s", variable, path)
	}
	return &ncVariable{VarGetter: vg, group: g}, nil
}

// NetCDFPaths returns path if it is a file, or the files of the directory
// sorted by name.
func NetCDFPaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "netCDF input")
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "list netCDF files")
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(paths)
	if len(paths) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no netCDF files in %s", path)
	}
	return paths, nil
}

var goTypes = map[string]zarr.DataType{
	"int8":    zarr.Int8,
	"uint8":   zarr.Uint8,
	"int16":   zarr.Int16,
	"uint16":  zarr.Uint16,
	"int32":   zarr.Int32,
	"uint32":  zarr.Uint32,
	"int64":   zarr.Int64,
	"uint64":  zarr.Uint64,
	"float32": zarr.Float32,
	"float64": zarr.Float64,
}

// Source is one netCDF variable split over files concatenated along the
// first dimension.
type Source struct {
	Paths          []string
	Variable       string
	DataType       zarr.DataType
	Shape          []uint64
	DimensionNames []string
	// Offsets holds the first row of each file in the concatenated array.
	Offsets []uint64

	open Opener
}

// Inspect opens variable in every file and checks that the files agree on
// data type, dimension names and every dimension but the first. A nil open
// uses OpenVariable.
func Inspect(paths []string, variable string, open Opener) (*Source, error) {
	if open == nil {
		open = OpenVariable
	}
	if len(paths) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no netCDF files")
	}
	src := &Source{Paths: paths, Variable: variable, open: open}
	for i, path := range paths {
		v, err := open(path, variable)
		if err != nil {
			return nil, err
		}
		goType, dims, shape := v.GoType(), v.Dimensions(), v.Shape()
		v.Close()

		dt, ok := goTypes[goType]
		if !ok {
			return nil, errors.New(errors.ErrCodeUnsupportedDataType, "unsupported netCDF variable type %s in %s", goType, path)
		}
		if len(shape) == 0 {
			return nil, errors.New(errors.ErrCodeInvalidShape, "variable %q in %s is a scalar", variable, path)
		}
		fileShape := make([]uint64, len(shape))
		for d, n := range shape {
			fileShape[d] = uint64(n)
		}

		if i == 0 {
			src.DataType = dt
			src.DimensionNames = dims
			src.Shape = fileShape
			src.Offsets = append(src.Offsets, 0)
			continue
		}
		switch {
		case dt != src.DataType:
			return nil, errors.New(errors.ErrCodeInvalidDataType, "data type of %q in %s is %s, expected %s", variable, path, dt, src.DataType)
		case !slices.Equal(dims, src.DimensionNames):
			return nil, errors.New(errors.ErrCodeInvalidShape, "dimensions of %q in %s are %v, expected %v", variable, path, dims, src.DimensionNames)
		case !slices.Equal(fileShape[1:], src.Shape[1:]):
			return nil, errors.New(errors.ErrCodeInvalidShape, "shape of %q in %s is %v, expected [* %v]", variable, path, fileShape, src.Shape[1:])
		}
		src.Offsets = append(src.Offsets, src.Shape[0])
		src.Shape[0] += fileShape[0]
	}
	return src, nil
}

// NetCDFOptions configure NetCDF.
type NetCDFOptions struct {
	ConcurrentChunks int
	Callback         progress.Callback
}

// NetCDF writes the variable described by src into a, which must have the
// same shape and data type, and returns the number of bytes read. Each chunk
// is assembled from the files it overlaps.
func NetCDF(ctx context.Context, src *Source, a *zarr.Array, opts NetCDFOptions) (uint64, error) {
	if !slices.Equal(a.Shape(), src.Shape) {
		return 0, errors.New(errors.ErrCodeInvalidShape, "array shape %v does not match netCDF shape %v", a.Shape(), src.Shape)
	}
	if a.DataType() != src.DataType {
		return 0, errors.New(errors.ErrCodeInvalidDataType, "array data type %s does not match netCDF data type %s", a.DataType(), src.DataType)
	}
	open := src.open
	if open == nil {
		open = OpenVariable
	}

	numChunks := a.NumChunks()
	chunkLimit, codecConcurrency := zarr.ChunkConcurrency(zarr.DefaultConcurrentTarget(), opts.ConcurrentChunks, numChunks, a.Codecs())
	codecOpts := zarr.CodecOptions{Concurrency: codecConcurrency}
	p := progress.New(int(numChunks), opts.Callback)

	var read atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkLimit)
	for idx := range zarr.SubsetWithShape(a.ChunkGridShape()).Indices() {
		if gctx.Err() != nil {
			break
		}
		subset := a.ChunkSubsetBounded(slices.Clone(idx))
		g.Go(func() error {
			var data []byte
			err := p.Read(func() error {
				var err error
				data, err = src.read(open, subset)
				return err
			})
			if err != nil {
				return err
			}
			read.Add(uint64(len(data)))
			if err := p.Write(func() error { return a.StoreSubset(gctx, subset, data, codecOpts) }); err != nil {
				return err
			}
			p.Next()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return read.Load(), err
	}
	return read.Load(), ctx.Err()
}

// read returns subset of the concatenated variable in C order.
func (s *Source) read(open Opener, subset zarr.Subset) ([]byte, error) {
	first, end := subset.Start[0], subset.End()[0]
	elemSize := s.DataType.Size()
	out := make([]byte, 0, subset.NumElements()*uint64(elemSize))

	i, _ := slices.BinarySearch(s.Offsets, first+1)
	for i--; i < len(s.Paths); i++ {
		offset := s.Offsets[i]
		if offset >= end {
			break
		}
		fileEnd := s.Shape[0]
		if i+1 < len(s.Offsets) {
			fileEnd = s.Offsets[i+1]
		}
		lo, hi := max(first, offset), min(end, fileEnd)
		if lo >= hi {
			continue
		}
		block, err := s.readRows(open, s.Paths[i], int64(lo-offset), int64(hi-offset))
		if err != nil {
			return nil, err
		}
		blockShape := append([]uint64{hi - lo}, s.Shape[1:]...)
		region := zarr.NewSubset(
			append([]uint64{0}, subset.Start[1:]...),
			append([]uint64{hi - lo}, subset.Shape[1:]...))
		out = append(out, zarr.ExtractRegion(block, blockShape, region, elemSize)...)
	}
	return out, nil
}

func (s *Source) readRows(open Opener, path string, begin, end int64) ([]byte, error) {
	v, err := open(path, s.Variable)
	if err != nil {
		return nil, err
	}
	defer v.Close()
	values, err := v.GetSlice(begin, end)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read rows %d..%d of %q from %s", begin, end, s.Variable, path)
	}
	data, err := flatten(values)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnsupportedDataType, err, "decode %q from %s", s.Variable, path)
	}
	if want := uint64(end-begin) * zarr.Product(s.Shape[1:]) * uint64(s.DataType.Size()); uint64(len(data)) != want {
		return nil, errors.New(errors.ErrCodeInvalidInput, "read %d bytes of %q from %s, expected %d", len(data), s.Variable, path, want)
	}
	return data, nil
}

// flatten encodes a nested slice of fixed-size values in little-endian C
// order.
func flatten(values any) ([]byte, error) {
	var out []byte
	var walk func(v reflect.Value) error
	walk = func(v reflect.Value) error {
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Slice {
			for i := range v.Len() {
				if err := walk(v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
		var err error
		out, err = binary.Append(out, binary.LittleEndian, v.Interface())
		return err
	}
	if err := walk(reflect.ValueOf(values)); err != nil {
		return nil, err
	}
	return out, nil
}
