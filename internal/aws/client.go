package aws

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/charmbracelet/log"

	"github.com/eleven-am/fwmatch/internal/domain"
)

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultCacheCapacity = 2000
	fetchConcurrency     = 10
)

// Client reads firewall rules from EC2 security groups.
type Client struct {
	ec2Client ec2.DescribeSecurityGroupsAPIClient
	accountID string
	region    string
	cache     *ttlCache[[]domain.RuleRecord]
	logger    *log.Logger
}

func newRetryer() aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = 5
		o.MaxBackoff = 30 * time.Second
		o.Backoff = retry.NewExponentialJitterBackoff(o.MaxBackoff)
		o.RateLimiter = ratelimit.None
	})
}

func NewClient(cfg aws.Config, accountID, region string) *Client {
	retryer := newRetryer()
	api := ec2.NewFromConfig(cfg, func(o *ec2.Options) { o.Retryer = retryer })
	return newClientFromAPI(api, accountID, region)
}

func newClientFromAPI(api ec2.DescribeSecurityGroupsAPIClient, accountID, region string) *Client {
	return &Client{
		ec2Client: api,
		accountID: accountID,
		region:    region,
		cache:     newTTLCache[[]domain.RuleRecord](defaultCacheTTL, defaultCacheCapacity),
		logger:    log.Default(),
	}
}

func (c *Client) WithLogger(logger *log.Logger) *Client {
	if logger != nil {
		c.logger = logger.With("account", c.accountID, "region", c.region)
	}
	return c
}

// WithCacheTTL sets how long translated security groups are reused. Reloads
// inside this window see the cached rules.
func (c *Client) WithCacheTTL(ttl time.Duration) *Client {
	c.cache = newTTLCache[[]domain.RuleRecord](ttl, defaultCacheCapacity)
	return c
}

func (c *Client) AccountID() string {
	return c.accountID
}

func (c *Client) cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}
