package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/fwmatch/internal/domain"
)

// SecurityGroupRules fetches each group and returns their rule records in the
// order the group IDs were given.
func (c *Client) SecurityGroupRules(ctx context.Context, groupIDs []string) ([]domain.RuleRecord, error) {
	results := make([][]domain.RuleRecord, len(groupIDs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range groupIDs {
		g.Go(func() error {
			records, err := c.securityGroupRules(gCtx, id)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.RuleRecord
	for _, records := range results {
		all = append(all, records...)
	}
	return all, nil
}

func (c *Client) securityGroupRules(ctx context.Context, sgID string) ([]domain.RuleRecord, error) {
	key := c.cacheKey("sg", sgID)
	if cached, ok := c.cache.get(key); ok {
		return cached, nil
	}

	out, err := c.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{sgID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe security group %s: %w", sgID, err)
	}
	if len(out.SecurityGroups) == 0 {
		return nil, fmt.Errorf("security group %s not found", sgID)
	}

	result := toRuleRecords(&out.SecurityGroups[0])
	c.logger.Debug("Security group translated", "group", sgID, "rules", len(result.records), "skipped", result.skipped)

	c.cache.set(key, result.records)
	return result.records, nil
}

// VPCSecurityGroupRules translates every security group in a VPC.
func (c *Client) VPCSecurityGroupRules(ctx context.Context, vpcID string) ([]domain.RuleRecord, error) {
	key := c.cacheKey("vpc", vpcID)
	if cached, ok := c.cache.get(key); ok {
		return cached, nil
	}

	paginator := ec2.NewDescribeSecurityGroupsPaginator(c.ec2Client, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	groups, err := collectPages[*ec2.DescribeSecurityGroupsOutput, ec2types.SecurityGroup](ctx, paginator,
		func(out *ec2.DescribeSecurityGroupsOutput) []ec2types.SecurityGroup {
			return out.SecurityGroups
		})
	if err != nil {
		return nil, fmt.Errorf("describe security groups in %s: %w", vpcID, err)
	}

	var combined translation
	for i := range groups {
		combined.add(toRuleRecords(&groups[i]))
	}
	c.logger.Debug("VPC security groups translated", "vpc", vpcID, "groups", len(groups), "rules", len(combined.records), "skipped", combined.skipped)

	c.cache.set(key, combined.records)
	return combined.records, nil
}

// Loader returns a rule loader over the given security groups, suitable for
// handing to a firewall.
func (c *Client) Loader(groupIDs []string) func(ctx context.Context) ([]domain.RuleRecord, error) {
	ids := append([]string(nil), groupIDs...)
	return func(ctx context.Context) ([]domain.RuleRecord, error) {
		return c.SecurityGroupRules(ctx, ids)
	}
}

// VPCLoader returns a rule loader over every security group in vpcID.
func (c *Client) VPCLoader(vpcID string) func(ctx context.Context) ([]domain.RuleRecord, error) {
	return func(ctx context.Context) ([]domain.RuleRecord, error) {
		return c.VPCSecurityGroupRules(ctx, vpcID)
	}
}
