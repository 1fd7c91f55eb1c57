package otbm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// reader is a cursor over the raw byte stream. It tracks the absolute
// offset and the open-node path so structural errors can say where the
// stream broke.
type reader struct {
	br   *bufio.Reader
	off  int64
	path []string
}

func newReader(r io.Reader) *reader {
	return &reader{br: bufio.NewReaderSize(r, 64*1024)}
}

func (r *reader) push(name string) { r.path = append(r.path, name) }

func (r *reader) pop() {
	if len(r.path) > 0 {
		r.path = r.path[:len(r.path)-1]
	}
}

func (r *reader) structf(format string, args ...any) error {
	return &StructuralError{
		Offset: r.off,
		Path:   append([]string(nil), r.path...),
		Msg:    fmt.Sprintf(format, args...),
	}
}

// u8 reads one raw wire byte. EOF is always structural corruption here;
// a well-formed stream ends only after the root NODE_END.
func (r *reader) u8() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, r.structf("unexpected end of stream")
	}
	r.off++
	return b, nil
}

func (r *reader) readFull(buf []byte) error {
	n, err := io.ReadFull(r.br, buf)
	r.off += int64(n)
	if err != nil {
		return r.structf("unexpected end of stream (wanted %d bytes, got %d)", len(buf), n)
	}
	return nil
}

// payload streams the logical bytes of one node payload, honoring escape
// semantics. An ESCAPE byte is dropped and the next byte taken literally;
// an unescaped marker ends the payload without being re-readable.
type payload struct {
	r     *reader
	ended bool
	delim byte
}

func (r *reader) beginNode() (byte, *payload, error) {
	typ, err := r.u8()
	if err != nil {
		return 0, nil, err
	}
	return typ, &payload{r: r}, nil
}

// next returns the next logical byte, or ok=false when the payload ended
// at a structural marker.
func (p *payload) next() (byte, bool, error) {
	if p.ended {
		return 0, false, nil
	}
	b, err := p.r.u8()
	if err != nil {
		return 0, false, err
	}
	switch b {
	case markerEscape:
		lit, err := p.r.u8()
		if err != nil {
			return 0, false, p.r.structf("escape byte at end of stream")
		}
		return lit, true, nil
	case markerStart, markerEnd:
		p.ended = true
		p.delim = b
		return 0, false, nil
	}
	return b, true, nil
}

// readFull reads exactly len(buf) logical bytes. Hitting a structural
// marker mid-read means a length field pointed past the payload, which is
// corruption.
func (p *payload) readFull(buf []byte) error {
	for i := range buf {
		b, ok, err := p.next()
		if err != nil {
			return err
		}
		if !ok {
			return p.r.structf("unexpected delimiter 0x%02X inside payload (wanted %d bytes, got %d)",
				p.delim, len(buf), i)
		}
		buf[i] = b
	}
	return nil
}

// drain skips the remaining logical bytes and returns the delimiter.
func (p *payload) drain() (byte, error) {
	for !p.ended {
		if _, _, err := p.next(); err != nil {
			return 0, err
		}
	}
	return p.delim, nil
}

// tail reads and returns all remaining logical bytes up to the delimiter.
// Used to preserve unrecognized attribute data verbatim.
func (p *payload) tail() ([]byte, error) {
	var out []byte
	for {
		b, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, b)
	}
}

func (p *payload) u8() (uint8, error) {
	var buf [1]byte
	if err := p.readFull(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (p *payload) u16() (uint16, error) {
	var buf [2]byte
	if err := p.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (p *payload) u32() (uint32, error) {
	var buf [4]byte
	if err := p.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// str reads a u16 length-prefixed UTF-8 string.
func (p *payload) str() (string, error) {
	b, err := p.strBytes()
	return string(b), err
}

func (p *payload) strBytes() ([]byte, error) {
	n, err := p.u16()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := p.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// skipSiblings consumes whole sibling subtrees until the NODE_END closing
// the current child list. The caller has just consumed a NODE_START; the
// next wire byte is a node type tag. Depth is tracked with a counter, not
// native recursion, so file-authored nesting cannot grow the stack.
func (r *reader) skipSiblings() error {
	depth := 1
	for {
		if _, err := r.u8(); err != nil { // type tag
			return err
		}
		p := &payload{r: r}
		delim, err := p.drain()
		if err != nil {
			return err
		}
		if delim == markerStart {
			depth++
			continue
		}
		// Node closed; unwind sibling lists.
		for {
			op, err := r.u8()
			if err != nil {
				return err
			}
			if op == markerStart {
				break // next sibling, back to the type tag
			}
			if op != markerEnd {
				return r.structf("invalid stream op 0x%02X while skipping subtree", op)
			}
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}
