package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/charmbracelet/log"

	"github.com/eleven-am/fwmatch/internal/domain"
)

const (
	DefaultRoleARNPattern = "arn:aws:iam::%s:role/FirewallRuleReaderRole"
	credentialSkew        = 5 * time.Minute
)

type stsAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// AccountContext hands out clients for other accounts by assuming a role in
// each. Credentials and clients are reused until shortly before expiry.
type AccountContext struct {
	baseConfig      aws.Config
	roleARNPattern  string
	stsClient       stsAPI
	credentialCache map[string]aws.Credentials
	clientPool      map[string]*Client
	newClient       func(cfg aws.Config, accountID, region string) *Client
	logger          *log.Logger
	mu              sync.RWMutex
}

func NewAccountContext(cfg aws.Config, roleARNPattern string) *AccountContext {
	return newAccountContext(cfg, roleARNPattern, sts.NewFromConfig(cfg))
}

func newAccountContext(cfg aws.Config, roleARNPattern string, stsClient stsAPI) *AccountContext {
	if roleARNPattern == "" {
		roleARNPattern = DefaultRoleARNPattern
	}
	return &AccountContext{
		baseConfig:      cfg,
		roleARNPattern:  roleARNPattern,
		stsClient:       stsClient,
		credentialCache: make(map[string]aws.Credentials),
		clientPool:      make(map[string]*Client),
		newClient:       NewClient,
		logger:          log.Default(),
	}
}

func (a *AccountContext) WithLogger(logger *log.Logger) *AccountContext {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *AccountContext) AssumeRole(ctx context.Context, accountID string) (aws.Credentials, error) {
	a.mu.RLock()
	creds, exists := a.credentialCache[accountID]
	a.mu.RUnlock()

	if exists && fresh(creds) {
		return creds, nil
	}

	roleARN := fmt.Sprintf(a.roleARNPattern, accountID)
	sessionName := fmt.Sprintf("fwmatch-%s", accountID)

	out, err := a.stsClient.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(3600),
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("assume role %s: %w", roleARN, err)
	}
	if out.Credentials == nil || out.Credentials.Expiration == nil {
		return aws.Credentials{}, fmt.Errorf("assume role %s: response carried no credentials", roleARN)
	}

	creds = aws.Credentials{
		AccessKeyID:     derefString(out.Credentials.AccessKeyId),
		SecretAccessKey: derefString(out.Credentials.SecretAccessKey),
		SessionToken:    derefString(out.Credentials.SessionToken),
		Source:          "AssumeRole",
		CanExpire:       true,
		Expires:         *out.Credentials.Expiration,
	}

	a.mu.Lock()
	a.credentialCache[accountID] = creds
	a.mu.Unlock()

	a.logger.Debug("Role assumed", "account", accountID, "expires", creds.Expires)
	return creds, nil
}

func (a *AccountContext) GetClient(ctx context.Context, accountID string) (*Client, error) {
	a.mu.RLock()
	client, exists := a.clientPool[accountID]
	creds, hasCreds := a.credentialCache[accountID]
	a.mu.RUnlock()

	if exists && hasCreds && fresh(creds) {
		return client, nil
	}

	creds, err := a.AssumeRole(ctx, accountID)
	if err != nil {
		return nil, err
	}

	cfg := a.baseConfig.Copy()
	cfg.Credentials = credentials.NewStaticCredentialsProvider(
		creds.AccessKeyID,
		creds.SecretAccessKey,
		creds.SessionToken,
	)

	client = a.newClient(cfg, accountID, cfg.Region).WithLogger(a.logger)

	a.mu.Lock()
	a.clientPool[accountID] = client
	a.mu.Unlock()

	return client, nil
}

// Loader returns a rule loader over security groups in accountID. Every call
// goes through GetClient, so the assumed role is renewed before it expires.
func (a *AccountContext) Loader(accountID string, groupIDs []string) func(ctx context.Context) ([]domain.RuleRecord, error) {
	ids := append([]string(nil), groupIDs...)
	return func(ctx context.Context) ([]domain.RuleRecord, error) {
		client, err := a.GetClient(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return client.SecurityGroupRules(ctx, ids)
	}
}

// VPCLoader is Loader for every security group in a VPC of accountID.
func (a *AccountContext) VPCLoader(accountID, vpcID string) func(ctx context.Context) ([]domain.RuleRecord, error) {
	return func(ctx context.Context) ([]domain.RuleRecord, error) {
		client, err := a.GetClient(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return client.VPCSecurityGroupRules(ctx, vpcID)
	}
}

func fresh(creds aws.Credentials) bool {
	return time.Now().Add(credentialSkew).Before(creds.Expires)
}
