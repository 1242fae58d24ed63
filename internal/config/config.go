package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/eleven-am/fwmatch/internal/domain"
)

const (
	envRulesFile      = "FWMATCH_RULES_FILE"
	envIndexMode      = "FWMATCH_INDEX_MODE"
	envLogLevel       = "FWMATCH_LOG_LEVEL"
	envReloadInterval = "FWMATCH_RELOAD_INTERVAL"
	envSecurityGroups = "FWMATCH_AWS_SECURITY_GROUPS"
	envVPCID          = "FWMATCH_AWS_VPC_ID"
	envAccountID      = "FWMATCH_AWS_ACCOUNT_ID"
	envRoleARNPattern = "FWMATCH_AWS_ROLE_ARN_PATTERN"
)

var ErrNoRuleSource = errors.New("no rule source configured")

type Config struct {
	RulesFile        string
	IndexMode        domain.IndexMode
	LogLevel         log.Level
	ReloadInterval   time.Duration
	SecurityGroupIDs []string
	VPCID            string
	AWSAccountID     string
	RoleARNPattern   string
}

// Load reads a .env file when present and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		RulesFile:      strings.TrimSpace(getenv(envRulesFile)),
		VPCID:          strings.TrimSpace(getenv(envVPCID)),
		AWSAccountID:   strings.TrimSpace(getenv(envAccountID)),
		RoleARNPattern: strings.TrimSpace(getenv(envRoleARNPattern)),
		LogLevel:       log.InfoLevel,
	}

	mode, err := domain.ParseIndexMode(strings.ToLower(strings.TrimSpace(getenv(envIndexMode))))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", envIndexMode, err)
	}
	cfg.IndexMode = mode

	if raw := strings.TrimSpace(getenv(envLogLevel)); raw != "" {
		level, err := log.ParseLevel(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envLogLevel, err)
		}
		cfg.LogLevel = level
	}

	if raw := strings.TrimSpace(getenv(envReloadInterval)); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envReloadInterval, err)
		}
		if interval < 0 {
			return Config{}, fmt.Errorf("%s: negative interval %s", envReloadInterval, raw)
		}
		cfg.ReloadInterval = interval
	}

	for _, id := range strings.Split(getenv(envSecurityGroups), ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.SecurityGroupIDs = append(cfg.SecurityGroupIDs, id)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate requires exactly one rule source.
func (c Config) Validate() error {
	var sources []string
	if c.RulesFile != "" {
		sources = append(sources, envRulesFile)
	}
	if len(c.SecurityGroupIDs) > 0 {
		sources = append(sources, envSecurityGroups)
	}
	if c.VPCID != "" {
		sources = append(sources, envVPCID)
	}

	switch {
	case len(sources) == 0:
		return fmt.Errorf("%w: set one of %s, %s or %s", ErrNoRuleSource, envRulesFile, envSecurityGroups, envVPCID)
	case len(sources) > 1:
		return fmt.Errorf("only one rule source may be set, got %s", strings.Join(sources, " and "))
	case c.AWSAccountID != "" && !c.UsesAWS():
		return fmt.Errorf("%s requires %s or %s", envAccountID, envSecurityGroups, envVPCID)
	}
	return nil
}

// UsesAWS reports whether rules come from security groups, listed or per VPC.
func (c Config) UsesAWS() bool {
	return len(c.SecurityGroupIDs) > 0 || c.VPCID != ""
}
