package zarr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/matzehuels/zarrtools/pkg/errors"
)

func init() {
	registerCodec("gzip", BytesToBytes, func(config json.RawMessage) (any, error) {
		c := &GzipCodec{Level: gzip.DefaultCompression}
		if len(config) > 0 {
			if err := json.Unmarshal(config, c); err != nil {
				return nil, err
			}
		}
		if c.Level < gzip.HuffmanOnly || c.Level > gzip.BestCompression {
			return nil, errors.New(errors.ErrCodeInvalidCodec, "gzip level %d out of range", c.Level)
		}
		return c, nil
	})
	registerCodec("zstd", BytesToBytes, func(config json.RawMessage) (any, error) {
		c := &ZstdCodec{Level: 3}
		if len(config) > 0 {
			if err := json.Unmarshal(config, c); err != nil {
				return nil, err
			}
		}
		return c, nil
	})
	registerCodec("crc32c", BytesToBytes, func(json.RawMessage) (any, error) {
		return &CRC32CCodec{}, nil
	})
}

// GzipCodec compresses with gzip.
type GzipCodec struct {
	Level int `json:"level"`
}

func (c *GzipCodec) Metadata() CodecMetadata {
	return CodecMetadata{Name: "gzip", Configuration: marshalConfig(c)}
}

func (c *GzipCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *GzipCodec) Decode(data []byte, _ CodecOptions) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidCodec, err, "gzip decode")
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ZstdCodec compresses with Zstandard.
type ZstdCodec struct {
	Level    int  `json:"level"`
	Checksum bool `json:"checksum"`

	once    sync.Once
	encoder *zstd.Encoder
	err     error
}

var (
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
	zstdDecoderErr  error
)

func (c *ZstdCodec) Metadata() CodecMetadata {
	return CodecMetadata{Name: "zstd", Configuration: marshalConfig(struct {
		Level    int  `json:"level"`
		Checksum bool `json:"checksum"`
	}{c.Level, c.Checksum})}
}

func (c *ZstdCodec) Encode(data []byte) ([]byte, error) {
	c.once.Do(func() {
		c.encoder, c.err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.Level)),
			zstd.WithEncoderCRC(c.Checksum))
	})
	if c.err != nil {
		return nil, c.err
	}
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (c *ZstdCodec) Decode(data []byte, _ CodecOptions) ([]byte, error) {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, zstdDecoderErr = zstd.NewReader(nil)
	})
	if zstdDecoderErr != nil {
		return nil, zstdDecoderErr
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidCodec, err, "zstd decode")
	}
	return out, nil
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32CCodec appends a little-endian CRC32C checksum.
type CRC32CCodec struct{}

func (c *CRC32CCodec) Metadata() CodecMetadata { return CodecMetadata{Name: "crc32c"} }

func (c *CRC32CCodec) Encode(data []byte) ([]byte, error) {
	out := make([]byte, len(data)+4)
	copy(out, data)
	binary.LittleEndian.PutUint32(out[len(data):], crc32.Checksum(data, castagnoli))
	return out, nil
}

func (c *CRC32CCodec) Decode(data []byte, opts CodecOptions) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New(errors.ErrCodeChecksumMismatch, "crc32c: encoded value is shorter than the checksum")
	}
	payload := data[:len(data)-4]
	if !opts.SkipChecksums {
		want := binary.LittleEndian.Uint32(data[len(data)-4:])
		if got := crc32.Checksum(payload, castagnoli); got != want {
			return nil, errors.New(errors.ErrCodeChecksumMismatch, "crc32c checksum %08x does not match stored %08x", got, want)
		}
	}
	return payload, nil
}
