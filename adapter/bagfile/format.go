package bagfile

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// File layout: a 5-byte preamble (magic + one version byte) followed by a
// CBOR sequence holding one fileHeader and then records in write order.

const (
	magic   = "XBAG"
	version = byte(1)
)

func preamble() []byte {
	return append([]byte(magic), version)
}

// Compression tags are format constants stored per record. Changing them
// breaks existing bag files.
const (
	compressionNone uint8 = 0
	compressionLZ4  uint8 = 1
	compressionZstd uint8 = 2
)

func compressionName(tag uint8) string {
	switch tag {
	case compressionNone:
		return "none"
	case compressionLZ4:
		return "lz4"
	case compressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

func parseCompression(name string) (uint8, error) {
	switch name {
	case "", "none":
		return compressionNone, nil
	case "lz4":
		return compressionLZ4, nil
	case "zstd":
		return compressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// Record kinds.
const (
	kindTopic    uint8 = 1
	kindEnvelope uint8 = 2
)

// fileHeader opens the CBOR sequence.
type fileHeader struct {
	Compression string `cbor:"compression"`
	Checksum    bool   `cbor:"checksum"`
}

// record is one element of the CBOR sequence. Exactly one of Topic and
// Envelope is set, per Kind.
type record struct {
	Kind     uint8           `cbor:"kind"`
	Topic    *topicRecord    `cbor:"topic,omitempty"`
	Envelope *envelopeRecord `cbor:"envelope,omitempty"`
}

type topicRecord struct {
	Name   string `cbor:"name"`
	Type   string `cbor:"type"`
	Format string `cbor:"format"`
}

// envelopeRecord carries one envelope. Data holds the payload, possibly
// compressed per Compression; Size is the uncompressed payload length and
// Sum its BLAKE3-256 digest when checksums are on.
type envelopeRecord struct {
	Topic       string `cbor:"topic"`
	ReceivedAt  int64  `cbor:"received_at"`
	Compression uint8  `cbor:"compression"`
	Size        int    `cbor:"size"`
	Data        []byte `cbor:"data"`
	Sum         []byte `cbor:"sum,omitempty"`
}

// encMode writes Core Deterministic Encoding (RFC 8949 §4.2) so identical
// records always produce identical bytes. decMode accepts standard CBOR and
// ignores unknown fields for forward compatibility.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// zstd coder instances are reused across calls; both are safe for
	// concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bagfile: cbor encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("bagfile: cbor decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("bagfile: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("bagfile: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload compresses data with the requested algorithm. When the
// output would not be smaller than the input, the data is stored as-is and
// the returned tag is compressionNone.
func compressPayload(data []byte, tag uint8) ([]byte, uint8, error) {
	switch tag {
	case compressionNone:
		return data, compressionNone, nil

	case compressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		dst := make([]byte, bound)
		written, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 when the data is incompressible.
		if written == 0 || written >= len(data) {
			return data, compressionNone, nil
		}
		return dst[:written], compressionLZ4, nil

	case compressionZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return data, compressionNone, nil
		}
		return out, compressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompressPayload reverses compressPayload. size must match the original
// payload length exactly; a mismatch is reported as an error.
func decompressPayload(data []byte, tag uint8, size int) ([]byte, error) {
	switch tag {
	case compressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d", len(data), size)
		}
		return data, nil

	case compressionLZ4:
		dst := make([]byte, size)
		read, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return dst, nil

	case compressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
