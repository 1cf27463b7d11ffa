package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/DataDog/zstd"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Codec names a payload compression, written to the "enc" field.
type Codec string

const (
	CodecNone   Codec = ""
	CodecSnappy Codec = "snappy"
	CodecLZ4    Codec = "lz4"
	CodecZstd   Codec = "zstd"
)

// MaxPayload bounds the decompressed size of a payload.
const MaxPayload = 4 << 20

var lz4Pool = &sync.Pool{New: func() interface{} {
	return &lz4Helper{}
}}

type lz4Helper struct {
	ht [1 << 16]int
}

// ParseCodec accepts the codec names used in configuration.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case CodecNone, CodecSnappy, CodecLZ4, CodecZstd:
		return c, nil
	case "none":
		return CodecNone, nil
	}
	return CodecNone, fmt.Errorf("unknown codec %q", s)
}

// compress returns the encoded body. ok is false when the codec could not
// make the body smaller, in which case it should travel uncompressed.
func compress(c Codec, body []byte) (out []byte, ok bool, err error) {
	switch c {
	case CodecNone:
		return body, false, nil
	case CodecSnappy:
		out = snappy.Encode(nil, body)
	case CodecLZ4:
		// uvarint decompressed size followed by one lz4 block
		dst := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(body)))
		n := binary.PutUvarint(dst, uint64(len(body)))
		h := lz4Pool.Get().(*lz4Helper)
		m, err := lz4.CompressBlock(body, dst[n:], h.ht[:])
		lz4Pool.Put(h)
		if err != nil {
			return nil, false, err
		}
		if m == 0 {
			return body, false, nil
		}
		out = dst[:n+m]
	case CodecZstd:
		if out, err = zstd.Compress(nil, body); err != nil {
			return nil, false, err
		}
	default:
		return nil, false, fmt.Errorf("unknown codec %q", string(c))
	}
	if len(out) >= len(body) {
		return body, false, nil
	}
	return out, true, nil
}

func decompress(c Codec, data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, err
		}
		if n > MaxPayload {
			return nil, fmt.Errorf("payload of %d bytes exceeds limit", n)
		}
		return snappy.Decode(nil, data)
	case CodecLZ4:
		size, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, fmt.Errorf("lz4: bad length prefix")
		}
		if size > MaxPayload {
			return nil, fmt.Errorf("payload of %d bytes exceeds limit", size)
		}
		out := make([]byte, size)
		m, err := lz4.UncompressBlock(data[n:], out)
		if err != nil {
			return nil, err
		}
		if uint64(m) != size {
			return nil, fmt.Errorf("lz4: short block, %d of %d bytes", m, size)
		}
		return out, nil
	case CodecZstd:
		// frames need not declare their size, so inflate at most one byte
		// past the limit
		r := zstd.NewReader(bytes.NewReader(data))
		defer r.Close()
		out, err := io.ReadAll(io.LimitReader(r, MaxPayload+1))
		if err != nil {
			return nil, err
		}
		if len(out) > MaxPayload {
			return nil, fmt.Errorf("payload exceeds limit of %d bytes", MaxPayload)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown codec %q", string(c))
}
