package format

import (
	"io"
	"os"
)

// Kind classifies a file by content.
type Kind int

const (
	KindUnknown Kind = iota
	KindMap          // OTBM tile map
	KindItemDB       // items.otb database
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindItemDB:
		return "item database"
	default:
		return "unknown"
	}
}

// Sniff classifies a file from its leading bytes. File extensions lie
// often enough that open paths sniff content instead: an explicit magic
// wins, and the four-zero-byte wildcard both formats share is resolved by
// checking that a node stream actually follows.
func Sniff(head []byte) Kind {
	if len(head) < 6 {
		return KindUnknown
	}
	switch {
	case head[0] == 'O' && head[1] == 'T' && head[2] == 'B' && head[3] == 'M':
		return KindMap
	case head[0] == 'O' && head[1] == 'T' && head[2] == 'B' && head[3] == 'I':
		return KindItemDB
	}
	if head[0] == 0 && head[1] == 0 && head[2] == 0 && head[3] == 0 && head[4] == 0xFE {
		// Wildcard magic. The root type byte separates the two formats:
		// maps use root type 1, items.otb uses 0.
		if head[5] == 0x01 {
			return KindMap
		}
		return KindItemDB
	}
	return KindUnknown
}

// SniffFile reads just enough of the file to classify it.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	head := make([]byte, 6)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return KindUnknown, err
	}
	return Sniff(head[:n]), nil
}
