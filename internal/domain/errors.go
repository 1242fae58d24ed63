package domain

import "fmt"

type MalformedRuleError struct {
	Source string
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *MalformedRuleError) Error() string {
	msg := fmt.Sprintf("malformed rule: %s %q: %s", e.Field, e.Value, e.Reason)
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	return msg
}

func (e *MalformedRuleError) Unwrap() error {
	return e.Err
}

type UnknownBucketError struct {
	Field string
	Value string
}

func (e *UnknownBucketError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Field, e.Value)
}

type InvalidAddressError struct {
	Value string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid IPv4 address %q", e.Value)
}
