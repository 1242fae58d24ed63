package domain

type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "inbound":
		return Inbound, nil
	case "outbound":
		return Outbound, nil
	}
	return 0, &UnknownBucketError{Field: "direction", Value: s}
}

type Protocol int

const (
	TCP Protocol = iota
	UDP
)

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return "unknown"
	}
}

func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	}
	return 0, &UnknownBucketError{Field: "protocol", Value: s}
}

// BucketCount is the size of the closed (direction, protocol) key domain.
const BucketCount = 4

type BucketKey struct {
	Direction Direction
	Protocol  Protocol
}

func (k BucketKey) Index() int {
	return int(k.Direction)*2 + int(k.Protocol)
}

func (k BucketKey) String() string {
	return k.Direction.String() + "/" + k.Protocol.String()
}

func ParseBucketKey(direction, protocol string) (BucketKey, error) {
	d, err := ParseDirection(direction)
	if err != nil {
		return BucketKey{}, err
	}
	p, err := ParseProtocol(protocol)
	if err != nil {
		return BucketKey{}, err
	}
	return BucketKey{Direction: d, Protocol: p}, nil
}

func AllBuckets() [BucketCount]BucketKey {
	return [BucketCount]BucketKey{
		{Direction: Inbound, Protocol: TCP},
		{Direction: Inbound, Protocol: UDP},
		{Direction: Outbound, Protocol: TCP},
		{Direction: Outbound, Protocol: UDP},
	}
}
