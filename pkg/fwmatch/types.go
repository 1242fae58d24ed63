package fwmatch

import (
	internalaws "github.com/eleven-am/fwmatch/internal/aws"
	"github.com/eleven-am/fwmatch/internal/config"
	"github.com/eleven-am/fwmatch/internal/domain"
	"github.com/eleven-am/fwmatch/internal/firewall"
	"github.com/eleven-am/fwmatch/internal/source"
)

type Rule = domain.Rule

type RuleRecord = domain.RuleRecord

type Packet = domain.Packet

type BucketKey = domain.BucketKey

type IndexMode = domain.IndexMode

const (
	ModeTree   = domain.ModeTree
	ModeLinear = domain.ModeLinear
)

type MalformedRuleError = domain.MalformedRuleError

type UnknownBucketError = domain.UnknownBucketError

type InvalidAddressError = domain.InvalidAddressError

type Store = firewall.Store

type BucketReport = firewall.BucketReport

type Firewall = firewall.Firewall

type Loader = firewall.Loader

type Option = firewall.Option

type Generator = source.Generator

type AWSClient = internalaws.Client

type AccountContext = internalaws.AccountContext

type Config = config.Config

var ErrNoRuleSource = config.ErrNoRuleSource
