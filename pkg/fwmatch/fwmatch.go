package fwmatch

import (
	"context"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/charmbracelet/log"

	internalaws "github.com/eleven-am/fwmatch/internal/aws"
	"github.com/eleven-am/fwmatch/internal/config"
	"github.com/eleven-am/fwmatch/internal/domain"
	"github.com/eleven-am/fwmatch/internal/firewall"
	"github.com/eleven-am/fwmatch/internal/source"
)

// Build compiles records into an immutable Store. Any malformed record fails
// the whole build with a *MalformedRuleError.
func Build(records []RuleRecord, mode IndexMode) (*Store, error) {
	return firewall.Build(records, mode)
}

// ParseIndexMode accepts "tree", "linear" or an empty string for the default.
func ParseIndexMode(s string) (IndexMode, error) {
	return domain.ParseIndexMode(s)
}

// New returns a Firewall that accepts nothing until its first Reload.
func New(load Loader, opts ...Option) *Firewall {
	return firewall.New(load, opts...)
}

func WithMode(mode IndexMode) Option {
	return firewall.WithMode(mode)
}

func WithLogger(logger *log.Logger) Option {
	return firewall.WithLogger(logger)
}

func ReadCSV(r io.Reader, name string) ([]RuleRecord, error) {
	return source.ReadCSV(r, name)
}

// CSVFile returns a Loader that rereads path on every reload.
func CSVFile(path string) Loader {
	return source.CSVFile(path)
}

func Static(records []RuleRecord) Loader {
	return source.Static(records)
}

// NewGenerator creates a deterministic source of synthetic rules and packets.
func NewGenerator(seed uint64) *Generator {
	return source.NewGenerator(seed)
}

func NewAWSClient(cfg aws.Config, accountID string) *AWSClient {
	return internalaws.NewClient(cfg, accountID, cfg.Region)
}

// NewAccountContext creates an account context for cross-account AWS access.
// The roleARNPattern should contain %s as a placeholder for the account ID.
func NewAccountContext(cfg aws.Config, roleARNPattern string) *AccountContext {
	return internalaws.NewAccountContext(cfg, roleARNPattern)
}

// SecurityGroupLoader returns a Loader over the given EC2 security groups.
func SecurityGroupLoader(client *AWSClient, groupIDs []string) Loader {
	return client.Loader(groupIDs)
}

// LoadConfig reads configuration from a .env file, if any, and the environment.
func LoadConfig() (Config, error) {
	return config.Load()
}

// NewLogger returns a logger writing to stderr at the configured level.
func NewLogger(cfg Config) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           cfg.LogLevel,
		ReportTimestamp: true,
		Prefix:          "fwmatch",
	})
}

// NewFromConfig wires the configured rule source into a Firewall. awsCfg is
// only consulted for security-group or VPC sources. The returned Firewall
// has not been loaded yet; call Reload or Run.
func NewFromConfig(ctx context.Context, cfg Config, awsCfg aws.Config, logger *log.Logger) (*Firewall, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewLogger(cfg)
	}

	var load Loader
	switch {
	case cfg.UsesAWS():
		load = awsLoader(cfg, awsCfg, logger)
		logger.Info("Using security group rules", "groups", len(cfg.SecurityGroupIDs), "vpc", cfg.VPCID, "account", cfg.AWSAccountID)
	default:
		load = source.CSVFile(cfg.RulesFile)
		logger.Info("Using rule file", "path", cfg.RulesFile)
	}

	return firewall.New(load, firewall.WithMode(cfg.IndexMode), firewall.WithLogger(logger)), nil
}

// awsLoader reads rules in the caller's account, or through an assumed role
// when an account ID is set. Cross-account loaders resolve their client on
// every reload so credentials are renewed.
func awsLoader(cfg Config, awsCfg aws.Config, logger *log.Logger) Loader {
	if cfg.AWSAccountID != "" {
		accounts := internalaws.NewAccountContext(awsCfg, cfg.RoleARNPattern).WithLogger(logger)
		if cfg.VPCID != "" {
			return accounts.VPCLoader(cfg.AWSAccountID, cfg.VPCID)
		}
		return accounts.Loader(cfg.AWSAccountID, cfg.SecurityGroupIDs)
	}

	client := internalaws.NewClient(awsCfg, "", awsCfg.Region).WithLogger(logger)
	if cfg.VPCID != "" {
		return client.VPCLoader(cfg.VPCID)
	}
	return client.Loader(cfg.SecurityGroupIDs)
}

// VPCSecurityGroupLoader returns a Loader over every security group in vpcID.
func VPCSecurityGroupLoader(client *AWSClient, vpcID string) Loader {
	return client.VPCLoader(vpcID)
}

// AccountLoader returns a Loader over security groups in another account,
// assuming the role again whenever its credentials near expiry.
func AccountLoader(accounts *AccountContext, accountID string, groupIDs []string) Loader {
	return accounts.Loader(accountID, groupIDs)
}
