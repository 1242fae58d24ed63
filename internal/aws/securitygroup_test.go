package aws

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

func tcpGroup(id, cidr string, port int32) ec2types.SecurityGroup {
	return ec2types.SecurityGroup{
		GroupId: aws.String(id),
		IpPermissions: []ec2types.IpPermission{{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(port),
			ToPort:     aws.Int32(port),
			IpRanges:   []ec2types.IpRange{{CidrIp: aws.String(cidr)}},
		}},
	}
}

func TestSecurityGroupRules_PreservesOrder(t *testing.T) {
	api := &fakeEC2{groups: map[string]ec2types.SecurityGroup{
		"sg-a": tcpGroup("sg-a", "10.0.0.0/24", 80),
		"sg-b": tcpGroup("sg-b", "10.0.1.0/24", 443),
		"sg-c": tcpGroup("sg-c", "10.0.2.5/32", 22),
	}}
	client := newClientFromAPI(api, "123456789012", "us-east-1")

	records, err := client.SecurityGroupRules(context.Background(), []string{"sg-c", "sg-a", "sg-b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPorts := []string{"22", "80", "443"}
	if len(records) != len(wantPorts) {
		t.Fatalf("expected %d records, got %d", len(wantPorts), len(records))
	}
	for i, port := range wantPorts {
		if records[i].PortRange != port {
			t.Errorf("records[%d].PortRange = %s, want %s", i, records[i].PortRange, port)
		}
	}
}

func TestSecurityGroupRules_Cached(t *testing.T) {
	api := &fakeEC2{groups: map[string]ec2types.SecurityGroup{
		"sg-a": tcpGroup("sg-a", "10.0.0.0/24", 80),
	}}
	client := newClientFromAPI(api, "123456789012", "us-east-1")

	for i := 0; i < 3; i++ {
		if _, err := client.SecurityGroupRules(context.Background(), []string{"sg-a"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if api.callCount() != 1 {
		t.Errorf("expected 1 API call, got %d", api.callCount())
	}
}

func TestSecurityGroupRules_NotFound(t *testing.T) {
	client := newClientFromAPI(&fakeEC2{}, "123456789012", "us-east-1")

	_, err := client.SecurityGroupRules(context.Background(), []string{"sg-missing"})
	if err == nil || !strings.Contains(err.Error(), "sg-missing not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSecurityGroupRules_APIError(t *testing.T) {
	apiErr := errors.New("access denied")
	client := newClientFromAPI(&fakeEC2{err: apiErr}, "123456789012", "us-east-1")

	_, err := client.SecurityGroupRules(context.Background(), []string{"sg-a", "sg-b"})
	if !errors.Is(err, apiErr) {
		t.Fatalf("expected wrapped API error, got %v", err)
	}
}

func TestVPCSecurityGroupRules_Paginates(t *testing.T) {
	api := &fakeEC2{pages: [][]ec2types.SecurityGroup{
		{tcpGroup("sg-a", "10.0.0.0/24", 80)},
		{tcpGroup("sg-b", "10.0.1.0/24", 443), tcpGroup("sg-c", "10.0.2.0/24", 22)},
	}}
	client := newClientFromAPI(api, "123456789012", "us-east-1")

	records, err := client.VPCSecurityGroupRules(context.Background(), "vpc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if api.callCount() != 2 {
		t.Errorf("expected 2 page requests, got %d", api.callCount())
	}

	if _, err := client.VPCSecurityGroupRules(context.Background(), "vpc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.callCount() != 2 {
		t.Errorf("expected cached result on second call, got %d requests", api.callCount())
	}
}

func TestLoader(t *testing.T) {
	api := &fakeEC2{groups: map[string]ec2types.SecurityGroup{
		"sg-a": tcpGroup("sg-a", "10.0.0.0/24", 80),
	}}
	ids := []string{"sg-a"}
	load := newClientFromAPI(api, "123456789012", "us-east-1").Loader(ids)
	ids[0] = "sg-changed"

	records, err := load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].IPRange != "10.0.0.0-10.0.0.255" {
		t.Errorf("unexpected records %v", records)
	}
}

func TestVPCLoader(t *testing.T) {
	api := &fakeEC2{pages: [][]ec2types.SecurityGroup{
		{tcpGroup("sg-a", "10.0.0.0/24", 80)},
		{tcpGroup("sg-b", "10.0.1.7/32", 443)},
	}}
	load := newClientFromAPI(api, "123456789012", "us-east-1").VPCLoader("vpc-1")

	records, err := load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || records[1].IPRange != "10.0.1.7" || records[1].PortRange != "443" {
		t.Errorf("unexpected records %v", records)
	}
}
