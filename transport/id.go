package transport

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidID is returned for strings that are not stream IDs.
var ErrInvalidID = errors.New("invalid stream id")

// ID is a stream entry ID: a millisecond timestamp and a sequence number
// within that millisecond.
type ID struct {
	Ms  uint64
	Seq uint64
}

// MinID sorts before every entry.
var MinID = ID{}

// ParseID parses "<ms>-<seq>". A bare "<ms>" has sequence 0.
func ParseID(s string) (ID, error) {
	var id ID
	var err error
	ms, seq := s, ""
	if i := strings.IndexByte(s, '-'); i != -1 {
		ms, seq = s[:i], s[i+1:]
	}
	if id.Ms, err = strconv.ParseUint(ms, 10, 64); err != nil {
		return ID{}, ErrInvalidID
	}
	if seq != "" {
		if id.Seq, err = strconv.ParseUint(seq, 10, 64); err != nil {
			return ID{}, ErrInvalidID
		}
	}
	return id, nil
}

func (id ID) String() string {
	var buf [41]byte
	b := strconv.AppendUint(buf[:0], id.Ms, 10)
	b = append(b, '-')
	b = strconv.AppendUint(b, id.Seq, 10)
	return string(b)
}

// Less reports whether id sorts before o.
func (id ID) Less(o ID) bool {
	return id.Ms < o.Ms || (id.Ms == o.Ms && id.Seq < o.Seq)
}

// Compare returns -1, 0 or 1.
func (id ID) Compare(o ID) int {
	switch {
	case id.Less(o):
		return -1
	case o.Less(id):
		return 1
	}
	return 0
}

// Next is the smallest ID greater than id.
func (id ID) Next() ID {
	if id.Seq == ^uint64(0) {
		return ID{Ms: id.Ms + 1}
	}
	return ID{Ms: id.Ms, Seq: id.Seq + 1}
}

// IsZero reports whether id is 0-0.
func (id ID) IsZero() bool {
	return id.Ms == 0 && id.Seq == 0
}
