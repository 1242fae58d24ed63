package domain

import "fmt"

// BucketIndex answers stabbing queries over the rules of one bucket.
// Implementations are immutable once built and safe for concurrent reads.
type BucketIndex interface {
	Contains(ip uint32, port uint16) bool
	Len() int
}

type IndexMode int

const (
	ModeTree IndexMode = iota
	ModeLinear
)

func (m IndexMode) String() string {
	switch m {
	case ModeTree:
		return "tree"
	case ModeLinear:
		return "linear"
	default:
		return fmt.Sprintf("IndexMode(%d)", int(m))
	}
}

func ParseIndexMode(s string) (IndexMode, error) {
	switch s {
	case "", "tree":
		return ModeTree, nil
	case "linear":
		return ModeLinear, nil
	}
	return 0, fmt.Errorf("unknown index mode %q", s)
}
