package strategies

import (
	"net/http"
	"strings"
)

// Class is the request class a strategy is selected by.
type Class string

// Request classes.
const (
	ClassAPI    Class = "api"
	ClassImage  Class = "image"
	ClassStatic Class = "static"
)

// ConditionRule maps a request condition to a class.
type ConditionRule struct {
	Key   string // "path_prefix", "destination", "host"
	Value string
	Class Class
}

// Classifier assigns each request exactly one class.
type Classifier struct {
	rules    []ConditionRule
	fallback Class
}

// NewClassifier creates a classifier.
// Rules are evaluated in order; the first match wins.
// The fallback class is used when no rule matches.
func NewClassifier(rules []ConditionRule, fallback Class) *Classifier {
	return &Classifier{rules: rules, fallback: fallback}
}

// DefaultRules returns the rule set of the offline cache manager: the API
// prefix first, then image destination, then each CDN host.
func DefaultRules(apiPrefix string, cdnHosts []string) []ConditionRule {
	rules := []ConditionRule{
		{Key: "path_prefix", Value: apiPrefix, Class: ClassAPI},
		{Key: "destination", Value: "image", Class: ClassImage},
	}
	for _, h := range cdnHosts {
		rules = append(rules, ConditionRule{Key: "host", Value: h, Class: ClassImage})
	}
	return rules
}

// Classify returns the class of req.
func (c *Classifier) Classify(req *http.Request) Class {
	for _, rule := range c.rules {
		if matches(rule, req) {
			return rule.Class
		}
	}
	return c.fallback
}

func matches(rule ConditionRule, req *http.Request) bool {
	switch rule.Key {
	case "path_prefix":
		return rule.Value != "" && strings.HasPrefix(req.URL.Path, rule.Value)
	case "destination":
		return strings.EqualFold(req.Header.Get("Sec-Fetch-Dest"), rule.Value)
	case "host":
		host := req.URL.Hostname()
		if host == "" {
			host = req.Host
			if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
				host = host[:i]
			}
		}
		return strings.EqualFold(host, rule.Value)
	default:
		return false
	}
}
