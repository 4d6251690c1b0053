// Package validator implements rule-based query validation against
// a configurable rule set, with a source rule always active first.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"convoindex/internal/config"
)

// Context carries the request-scoped facts rules evaluate against.
type Context struct {
	Source          string
	PermissionLevel int
	Now             time.Time // zero value means "use time.Now()" at evaluation time
}

// Validator evaluates a query against the configured rule set.
type Validator struct {
	DefaultAllowedSources []string
	Rules                 []config.RuleConfig
	ShortCircuit          bool
}

// New builds a Validator from the orchestrator's configured rule list
// for one ruleset key, plus the default always-active source rule.
func New(allowedSources []string, rules []config.RuleConfig, shortCircuit bool) *Validator {
	return &Validator{DefaultAllowedSources: allowedSources, Rules: rules, ShortCircuit: shortCircuit}
}

// Validate runs the default source rule first, then the configured
// rules in order.
func (v *Validator) Validate(query string, ctx Context) (bool, []string) {
	var failures []string

	if msg, ok := checkSource(ctx.Source, v.DefaultAllowedSources); !ok {
		failures = append(failures, msg)
		if v.ShortCircuit {
			return false, failures
		}
	}

	for _, rule := range v.Rules {
		msg, ok := evaluate(rule, query, ctx)
		if !ok {
			failures = append(failures, msg)
			if v.ShortCircuit {
				return false, failures
			}
		}
	}

	return len(failures) == 0, failures
}

func evaluate(rule config.RuleConfig, query string, ctx Context) (string, bool) {
	switch rule.Kind {
	case "source":
		return checkSource(ctx.Source, rule.Allowed)
	case "length":
		return checkLength(query, rule.Min, rule.Max)
	case "keyword":
		return checkKeyword(query, rule.Forbidden)
	case "regex":
		return checkRegex(query, rule.Pattern)
	case "time":
		return checkTime(ctx.Now, rule.StartHour, rule.EndHour)
	case "permission":
		return checkPermission(ctx.PermissionLevel, rule.Required)
	default:
		return fmt.Sprintf("unknown rule kind %q", rule.Kind), false
	}
}

func checkSource(source string, allowed []string) (string, bool) {
	for _, a := range allowed {
		if a == source {
			return "", true
		}
	}
	return fmt.Sprintf("source %q is not in the allowed set", source), false
}

func checkLength(query string, min, max int) (string, bool) {
	n := len(query)
	if min > 0 && n < min {
		return fmt.Sprintf("query length %d is below minimum %d", n, min), false
	}
	if max > 0 && n > max {
		return fmt.Sprintf("query length %d exceeds maximum %d", n, max), false
	}
	return "", true
}

func checkKeyword(query string, forbidden []string) (string, bool) {
	lower := strings.ToLower(query)
	for _, f := range forbidden {
		if f == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(f)) {
			return fmt.Sprintf("query contains forbidden keyword %q", f), false
		}
	}
	return "", true
}

func checkRegex(query, pattern string) (string, bool) {
	if pattern == "" {
		return "", true
	}
	matched, err := regexp.MatchString(pattern, query)
	if err != nil {
		return fmt.Sprintf("invalid regex rule %q: %v", pattern, err), false
	}
	if !matched {
		return fmt.Sprintf("query does not match required pattern %q", pattern), false
	}
	return "", true
}

func checkTime(now time.Time, startHour, endHour int) (string, bool) {
	if now.IsZero() {
		now = time.Now()
	}
	hour := now.Hour()
	inWindow := false
	if startHour <= endHour {
		inWindow = hour >= startHour && hour < endHour
	} else {
		inWindow = hour >= startHour || hour < endHour
	}
	if !inWindow {
		return fmt.Sprintf("hour %d is outside the allowed window [%d,%d)", hour, startHour, endHour), false
	}
	return "", true
}

func checkPermission(level, required int) (string, bool) {
	if level < required {
		return fmt.Sprintf("permission level %d is below required level %d", level, required), false
	}
	return "", true
}
