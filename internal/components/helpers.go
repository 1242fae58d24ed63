package components

import (
	"cmp"
	"errors"
	"net/netip"
	"strconv"
	"strings"

	"github.com/eleven-am/fwmatch/internal/domain"
)

// ParseIPv4 converts a dotted-quad literal to its big-endian integer form.
// Surrounding whitespace is rejected; range tokens are trimmed before they
// get here.
func ParseIPv4(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return 0, &domain.InvalidAddressError{Value: s}
	}
	return domain.AddrToUint32(addr), nil
}

// ParseIPRange accepts "A" or "A-B". The first endpoint is the start and the
// second the end; they are not reordered.
func ParseIPRange(token string) (start, end uint32, err error) {
	parts, err := splitRange("ip_range", token)
	if err != nil {
		return 0, 0, err
	}
	bounds := make([]uint32, len(parts))
	for i, p := range parts {
		v, perr := ParseIPv4(p)
		if perr != nil {
			return 0, 0, &domain.MalformedRuleError{Field: "ip_range", Value: token, Reason: "not an IPv4 address: " + strconv.Quote(p), Err: perr}
		}
		bounds[i] = v
	}
	start, end = bounds[0], bounds[len(bounds)-1]
	if start > end {
		return 0, 0, &domain.MalformedRuleError{Field: "ip_range", Value: token, Reason: "start is greater than end"}
	}
	return start, end, nil
}

// ParsePortRange accepts "P" or "P-Q" with 0 <= P <= Q <= 65535.
func ParsePortRange(token string) (start, end uint16, err error) {
	parts, err := splitRange("port_range", token)
	if err != nil {
		return 0, 0, err
	}
	bounds := make([]uint16, len(parts))
	for i, p := range parts {
		v, perr := strconv.ParseUint(p, 10, 16)
		if perr != nil {
			return 0, 0, &domain.MalformedRuleError{Field: "port_range", Value: token, Reason: "not a port number: " + strconv.Quote(p), Err: perr}
		}
		bounds[i] = uint16(v)
	}
	start, end = bounds[0], bounds[len(bounds)-1]
	if start > end {
		return 0, 0, &domain.MalformedRuleError{Field: "port_range", Value: token, Reason: "start is greater than end"}
	}
	return start, end, nil
}

func splitRange(field, token string) ([]string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &domain.MalformedRuleError{Field: field, Value: token, Reason: "missing value"}
	}
	parts := strings.Split(token, "-")
	if len(parts) > 2 {
		return nil, &domain.MalformedRuleError{Field: field, Value: token, Reason: "too many endpoints"}
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return nil, &domain.MalformedRuleError{Field: field, Value: token, Reason: "empty endpoint"}
		}
	}
	return parts, nil
}

func ParseRule(ipRange, portRange string) (domain.Rule, error) {
	startIP, endIP, err := ParseIPRange(ipRange)
	if err != nil {
		return domain.Rule{}, err
	}
	startPort, endPort, err := ParsePortRange(portRange)
	if err != nil {
		return domain.Rule{}, err
	}
	return domain.Rule{StartIP: startIP, EndIP: endIP, StartPort: startPort, EndPort: endPort}, nil
}

// ParseRecord validates the bucket fields and range tokens of one record.
// Every failure is reported as a *domain.MalformedRuleError carrying the
// record's Source.
func ParseRecord(rec domain.RuleRecord) (domain.BucketKey, domain.Rule, error) {
	key, err := domain.ParseBucketKey(strings.TrimSpace(rec.Direction), strings.TrimSpace(rec.Protocol))
	if err != nil {
		var bucketErr *domain.UnknownBucketError
		if !errors.As(err, &bucketErr) {
			return domain.BucketKey{}, domain.Rule{}, err
		}
		return domain.BucketKey{}, domain.Rule{}, &domain.MalformedRuleError{
			Source: rec.Source,
			Field:  bucketErr.Field,
			Value:  bucketErr.Value,
			Reason: "not a known " + bucketErr.Field,
			Err:    err,
		}
	}
	rule, err := ParseRule(rec.IPRange, rec.PortRange)
	if err != nil {
		var malformed *domain.MalformedRuleError
		if errors.As(err, &malformed) {
			malformed.Source = rec.Source
		}
		return domain.BucketKey{}, domain.Rule{}, err
	}
	return key, rule, nil
}

// compareRules orders by StartIP, then EndIP, then ports, so sorted output
// is fully deterministic.
func compareRules(a, b domain.Rule) int {
	if c := cmp.Compare(a.StartIP, b.StartIP); c != 0 {
		return c
	}
	if c := cmp.Compare(a.EndIP, b.EndIP); c != 0 {
		return c
	}
	if c := cmp.Compare(a.StartPort, b.StartPort); c != 0 {
		return c
	}
	return cmp.Compare(a.EndPort, b.EndPort)
}
