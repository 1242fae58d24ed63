package domain

import (
	"fmt"
	"net/netip"
)

// Rule permits every (ip, port) with StartIP <= ip <= EndIP and
// StartPort <= port <= EndPort. Bounds are inclusive.
type Rule struct {
	StartIP   uint32
	EndIP     uint32
	StartPort uint16
	EndPort   uint16
}

func (r Rule) ContainsIP(ip uint32) bool {
	return r.StartIP <= ip && ip <= r.EndIP
}

func (r Rule) ContainsPort(port uint16) bool {
	return r.StartPort <= port && port <= r.EndPort
}

func (r Rule) Contains(ip uint32, port uint16) bool {
	return r.ContainsIP(ip) && r.ContainsPort(port)
}

func (r Rule) String() string {
	ips := Uint32ToAddr(r.StartIP).String()
	if r.EndIP != r.StartIP {
		ips += "-" + Uint32ToAddr(r.EndIP).String()
	}
	ports := fmt.Sprintf("%d", r.StartPort)
	if r.EndPort != r.StartPort {
		ports += fmt.Sprintf("-%d", r.EndPort)
	}
	return ips + ":" + ports
}

// RuleRecord is one unparsed rule row. Source is informational and only
// used to point at the offending input in errors and logs.
type RuleRecord struct {
	Direction string
	Protocol  string
	PortRange string
	IPRange   string
	Source    string
}

type Packet struct {
	Direction string
	Protocol  string
	Port      int
	IP        string
}

func AddrToUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func Uint32ToAddr(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
