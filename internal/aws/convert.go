package aws

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go4.org/netipx"

	"github.com/eleven-am/fwmatch/internal/domain"
)

const (
	directionIngress = "ingress"
	directionEgress  = "egress"
)

// translation is the outcome of turning one security group into rule records.
// Skipped counts permission entries that have no IPv4 equivalent: IPv6
// ranges, referenced groups, prefix lists and protocols other than TCP/UDP.
type translation struct {
	records []domain.RuleRecord
	skipped int
}

func toRuleRecords(sg *ec2types.SecurityGroup) translation {
	groupID := derefString(sg.GroupId)

	var out translation
	for _, perm := range sg.IpPermissions {
		out.add(permissionRecords(groupID, directionIngress, perm))
	}
	for _, perm := range sg.IpPermissionsEgress {
		out.add(permissionRecords(groupID, directionEgress, perm))
	}
	return out
}

func (t *translation) add(other translation) {
	t.records = append(t.records, other.records...)
	t.skipped += other.skipped
}

func permissionRecords(groupID, awsDirection string, perm ec2types.IpPermission) translation {
	var out translation
	out.skipped = len(perm.Ipv6Ranges) + len(perm.UserIdGroupPairs) + len(perm.PrefixListIds)

	protocols := permissionProtocols(derefString(perm.IpProtocol))
	if len(protocols) == 0 {
		out.skipped += len(perm.IpRanges)
		return out
	}

	direction := domain.Inbound.String()
	if awsDirection == directionEgress {
		direction = domain.Outbound.String()
	}
	ports := permissionPorts(perm)

	for _, r := range perm.IpRanges {
		cidr := derefString(r.CidrIp)
		ipRange, ok := cidrToRange(cidr)
		if !ok {
			out.skipped++
			continue
		}
		for _, protocol := range protocols {
			out.records = append(out.records, domain.RuleRecord{
				Direction: direction,
				Protocol:  protocol,
				PortRange: ports,
				IPRange:   ipRange,
				Source:    fmt.Sprintf("%s:%s:%s", groupID, awsDirection, cidr),
			})
		}
	}
	return out
}

// permissionProtocols maps an EC2 protocol to the buckets it covers. "-1"
// means every protocol, which here is both TCP and UDP.
func permissionProtocols(protocol string) []string {
	switch strings.ToLower(protocol) {
	case "-1", "all":
		return []string{domain.TCP.String(), domain.UDP.String()}
	case "tcp", "6":
		return []string{domain.TCP.String()}
	case "udp", "17":
		return []string{domain.UDP.String()}
	}
	return nil
}

func permissionPorts(perm ec2types.IpPermission) string {
	if perm.FromPort == nil || perm.ToPort == nil {
		return "0-65535"
	}
	from, to := derefInt32(perm.FromPort), derefInt32(perm.ToPort)
	if from < 0 || to < 0 {
		return "0-65535"
	}
	if from == to {
		return strconv.Itoa(int(from))
	}
	return strconv.Itoa(int(from)) + "-" + strconv.Itoa(int(to))
}

// cidrToRange expands an IPv4 CIDR into the "A" or "A-B" token form.
func cidrToRange(cidr string) (string, bool) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil || !prefix.Addr().Is4() {
		return "", false
	}
	r := netipx.RangeOfPrefix(prefix.Masked())
	if r.From() == r.To() {
		return r.From().String(), true
	}
	return r.From().String() + "-" + r.To().String(), true
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt32(i *int32) int32 {
	if i == nil {
		return 0
	}
	return *i
}
