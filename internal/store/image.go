package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Image layout:
//
//	magic    [4]byte  "MXKV"
//	version  uint8
//	flags    uint8    bit 0: payload is an lz4 block
//	rawLen   uint32   big endian, length of the CBOR payload before compression
//	checksum [32]byte BLAKE3-256 of the stored payload
//	payload  CBOR map key -> value
const (
	imageVersion    = 1
	flagLZ4         = 1 << 0
	imageHeaderSize = 4 + 1 + 1 + 4 + blake3Size
	blake3Size      = 32

	// maxImagePayload bounds rawLen so a corrupt header cannot force a huge allocation
	maxImagePayload = 64 << 20
)

var imageMagic = [4]byte{'M', 'X', 'K', 'V'}

// ErrCorrupt is returned when the image fails its integrity check
var ErrCorrupt = errors.New("storage image is corrupt")

var (
	imageEncMode cbor.EncMode
	imageDecMode cbor.DecMode
)

func init() {
	var err error

	imageEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}

	imageDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string][]byte(nil)),
		MaxMapPairs:    1 << 20,
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// encodeImage serializes records into a partition image
func encodeImage(records map[string][]byte) ([]byte, error) {
	if records == nil {
		records = map[string][]byte{}
	}
	raw, err := imageEncMode.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}

	payload := raw
	var flags byte
	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, compressed, nil)
	if err == nil && n > 0 && n < len(raw) {
		payload = compressed[:n]
		flags |= flagLZ4
	}

	sum := blake3.Sum256(payload)

	var buf bytes.Buffer
	buf.Grow(imageHeaderSize + len(payload))
	buf.Write(imageMagic[:])
	buf.WriteByte(imageVersion)
	buf.WriteByte(flags)
	binary.Write(&buf, binary.BigEndian, uint32(len(raw)))
	buf.Write(sum[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// decodeImage verifies and parses a partition image. Every failure wraps ErrCorrupt.
func decodeImage(image []byte) (map[string][]byte, error) {
	if len(image) < imageHeaderSize {
		return nil, fmt.Errorf("%w: image is %d bytes, header needs %d", ErrCorrupt, len(image), imageHeaderSize)
	}
	if !bytes.Equal(image[:4], imageMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, image[:4])
	}
	if v := image[4]; v != imageVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	flags := image[5]
	rawLen := binary.BigEndian.Uint32(image[6:10])
	if rawLen > maxImagePayload {
		return nil, fmt.Errorf("%w: payload length %d out of range", ErrCorrupt, rawLen)
	}

	var want [blake3Size]byte
	copy(want[:], image[10:imageHeaderSize])
	payload := image[imageHeaderSize:]
	if blake3.Sum256(payload) != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	raw := payload
	if flags&flagLZ4 != 0 {
		raw = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if n != int(rawLen) {
			return nil, fmt.Errorf("%w: decompressed %d bytes, header says %d", ErrCorrupt, n, rawLen)
		}
	} else if len(raw) != int(rawLen) {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(raw), rawLen)
	}

	records := make(map[string][]byte)
	if err := imageDecMode.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return records, nil
}
