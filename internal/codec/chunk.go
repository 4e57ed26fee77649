// Package codec implements the chunked transport framing (spec §4.1) used
// to move payloads over the BLE GATT link's small MTU.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultMTU is the default BLE characteristic MTU in bytes.
const DefaultMTU = 512

// chunkHeaderSize is the 4-byte {seq_no, total_chunks} header prefixed to
// every fragment in the numbered framing.
const chunkHeaderSize = 4

// lengthPrefixSize is the 4-byte total-length prefix on the first
// fragment of the streaming framing.
const lengthPrefixSize = 4

var (
	// ErrReassemblyFailed is returned when the received chunk count
	// diverges from the declared total (spec §4.1 error case).
	ErrReassemblyFailed = errors.New("codec: chunk reassembly failed")
	// ErrPayloadTooLarge is returned when a payload would need more than
	// 65535 fragments to encode under the numbered framing.
	ErrPayloadTooLarge = errors.New("codec: payload exceeds maximum chunk count")
	// ErrMTUTooSmall is returned when MTU leaves no room for payload data.
	ErrMTUTooSmall = errors.New("codec: MTU too small for chunk header")
)

// EncodeChunks splits payload into MTU-sized fragments using the
// numbered framing: each fragment is a 4-byte big-endian
// {seq_no uint16, total_chunks uint16} header followed by up to
// (mtu-4) bytes of payload.
func EncodeChunks(payload []byte, mtu int) ([][]byte, error) {
	if mtu <= chunkHeaderSize {
		return nil, ErrMTUTooSmall
	}
	dataPerChunk := mtu - chunkHeaderSize

	total := (len(payload) + dataPerChunk - 1) / dataPerChunk
	if total == 0 {
		total = 1
	}
	if total > 65535 {
		return nil, fmt.Errorf("%w: %d chunks needed", ErrPayloadTooLarge, total)
	}

	chunks := make([][]byte, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * dataPerChunk
		end := start + dataPerChunk
		if end > len(payload) {
			end = len(payload)
		}
		chunk := make([]byte, chunkHeaderSize+(end-start))
		binary.BigEndian.PutUint16(chunk[0:2], uint16(seq))
		binary.BigEndian.PutUint16(chunk[2:4], uint16(total))
		copy(chunk[chunkHeaderSize:], payload[start:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Reassembler buffers numbered-framing chunks for many concurrent
// logical messages, keyed by (peer, message id), and reassembles each
// once every declared chunk has arrived.
type Reassembler struct {
	mu      sync.Mutex
	pending map[string]*partial
}

type partial struct {
	total  int
	chunks map[uint16][]byte
}

// NewReassembler creates an empty chunk reassembly buffer.
func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[string]*partial)}
}

// Key formats the (peer, messageID) composite key used to bucket chunks.
func Key(peer, messageID string) string { return peer + "\x00" + messageID }

// Add ingests one received chunk. When the logical message is complete
// it returns the reassembled payload and true. A chunk count mismatch
// (a chunk whose declared total differs from the total declared by the
// first chunk seen for key) drops the whole logical message per spec
// §4.1 and returns an error.
func (r *Reassembler) Add(key string, chunk []byte) ([]byte, bool, error) {
	if len(chunk) < chunkHeaderSize {
		return nil, false, fmt.Errorf("%w: chunk shorter than header", ErrReassemblyFailed)
	}
	seq := binary.BigEndian.Uint16(chunk[0:2])
	total := binary.BigEndian.Uint16(chunk[2:4])
	data := chunk[chunkHeaderSize:]

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[key]
	if !ok {
		p = &partial{total: int(total), chunks: make(map[uint16][]byte)}
		r.pending[key] = p
	}
	if int(total) != p.total {
		delete(r.pending, key)
		return nil, false, fmt.Errorf("%w: inconsistent total_chunks", ErrReassemblyFailed)
	}
	p.chunks[seq] = append([]byte(nil), data...)

	if len(p.chunks) < p.total {
		return nil, false, nil
	}

	seqs := make([]int, 0, len(p.chunks))
	for s := range p.chunks {
		seqs = append(seqs, int(s))
	}
	sort.Ints(seqs)

	var out []byte
	for _, s := range seqs {
		out = append(out, p.chunks[uint16(s)]...)
	}
	delete(r.pending, key)
	return out, true, nil
}

// Drop discards any partial state for a logical message, used when a
// transport-level error makes the in-flight chunks unusable.
func (r *Reassembler) Drop(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key)
}

// EncodeStream frames payload using the length-prefixed streaming
// framing: the first fragment carries a 4-byte big-endian total-length
// prefix, followed by continuation fragments with no per-chunk header,
// until the byte count matches (spec §4.1).
func EncodeStream(payload []byte, mtu int) ([][]byte, error) {
	if mtu <= 0 {
		return nil, ErrMTUTooSmall
	}

	first := make([]byte, lengthPrefixSize)
	binary.BigEndian.PutUint32(first, uint32(len(payload)))

	firstDataCap := mtu - lengthPrefixSize
	if firstDataCap < 0 {
		firstDataCap = 0
	}

	var frames [][]byte
	offset := 0
	if firstDataCap > 0 && len(payload) > 0 {
		end := firstDataCap
		if end > len(payload) {
			end = len(payload)
		}
		first = append(first, payload[:end]...)
		offset = end
	}
	frames = append(frames, first)

	for offset < len(payload) {
		end := offset + mtu
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, append([]byte(nil), payload[offset:end]...))
		offset = end
	}
	return frames, nil
}

// StreamReassembler reassembles the length-prefixed streaming framing for
// one logical message: feed it fragments in order starting with the
// length-prefixed first fragment.
type StreamReassembler struct {
	total     int64
	received  int64
	buf       []byte
	haveFirst bool
}

// NewStreamReassembler creates an empty streaming-framing reassembler.
func NewStreamReassembler() *StreamReassembler { return &StreamReassembler{} }

// Add ingests the next fragment in sequence. Returns the completed
// payload and true once the declared byte count has been received.
func (s *StreamReassembler) Add(frame []byte) ([]byte, bool, error) {
	if !s.haveFirst {
		if len(frame) < lengthPrefixSize {
			return nil, false, fmt.Errorf("%w: first frame shorter than length prefix", ErrReassemblyFailed)
		}
		s.total = int64(binary.BigEndian.Uint32(frame[0:lengthPrefixSize]))
		s.haveFirst = true
		frame = frame[lengthPrefixSize:]
	}
	s.buf = append(s.buf, frame...)
	s.received = int64(len(s.buf))

	if s.received > s.total {
		return nil, false, fmt.Errorf("%w: received more bytes than declared", ErrReassemblyFailed)
	}
	if s.received < s.total {
		return nil, false, nil
	}
	return s.buf, true, nil
}

// MaxStreamPayload returns the largest payload length a numbered-framing
// encode/decode round trip can carry for the given MTU (65535 chunks at
// (mtu-4) bytes each) (spec §8 property 9).
func MaxStreamPayload(mtu int) int64 {
	return int64(65535) * int64(mtu-chunkHeaderSize)
}
