package otbm

import (
	"bufio"
	"encoding/binary"
	"io"
)

// writer emits the node wire format. Payload bytes are escaped on the way
// out; markers and type tags go through raw. Errors are sticky so codecs
// can emit without checking every call.
type writer struct {
	bw  *bufio.Writer
	err error
}

func newWriter(w io.Writer) *writer {
	return &writer{bw: bufio.NewWriterSize(w, 64*1024)}
}

func (w *writer) raw(b byte) {
	if w.err == nil {
		w.err = w.bw.WriteByte(b)
	}
}

func (w *writer) rawBytes(p []byte) {
	if w.err == nil {
		_, w.err = w.bw.Write(p)
	}
}

func (w *writer) begin(typ byte) {
	w.raw(markerStart)
	w.raw(typ)
}

func (w *writer) end() {
	w.raw(markerEnd)
}

// bytes writes payload data, escaping any byte that collides with a
// structural marker.
func (w *writer) bytes(p []byte) {
	for _, b := range p {
		if b == markerStart || b == markerEnd || b == markerEscape {
			w.raw(markerEscape)
		}
		w.raw(b)
	}
}

func (w *writer) u8(v uint8) {
	w.bytes([]byte{v})
}

func (w *writer) u16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.bytes(buf[:])
}

func (w *writer) u32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.bytes(buf[:])
}

// str writes a u16 length-prefixed string, truncated at 64 KiB.
func (w *writer) str(s string) {
	raw := []byte(s)
	if len(raw) > 0xFFFF {
		raw = raw[:0xFFFF]
	}
	w.u16(uint16(len(raw)))
	w.bytes(raw)
}

func (w *writer) flush() error {
	if w.err != nil {
		return w.err
	}
	return w.bw.Flush()
}
