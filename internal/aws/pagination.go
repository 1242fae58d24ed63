package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

type ec2Pager[Output any] interface {
	HasMorePages() bool
	NextPage(ctx context.Context, optFns ...func(*ec2.Options)) (Output, error)
}

// collectPages drains a paginator, stopping early once ctx is done.
func collectPages[Output any, Item any](
	ctx context.Context,
	pager ec2Pager[Output],
	extract func(Output) []Item,
) ([]Item, error) {
	var items []Item
	for pager.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, extract(page)...)
	}
	return items, nil
}
