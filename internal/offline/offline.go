// Package offline implements the offline cache manager: an installable worker
// that precaches the app shell, prunes caches from older deployments and
// answers every request through a per-class strategy.
//
// A Registration owns the lifecycle. Register installs a new Worker; once
// installed it supersedes the active worker (immediately when SkipWaiting is
// set, otherwise on a SKIP_WAITING command), activates it and lets it claim
// all traffic. Until a worker has claimed, requests go straight to the network.
package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Config describes one deployment of the cache manager.
type Config struct {
	// StaticCache, APICache and ImageCache form the Version Set.
	StaticCache string
	APICache    string
	ImageCache  string
	// Precache lists the URLs stored at install time. Relative entries are
	// resolved against Origin.
	Precache []string
	// APIPrefix selects the api class by URL path prefix.
	APIPrefix string
	// CDNHosts select the image class by host.
	CDNHosts []string
	// SkipWaiting activates an installed worker without waiting for a
	// SKIP_WAITING command.
	SkipWaiting bool
	// Origin is the app origin that relative URLs resolve against.
	Origin *url.URL
}

// VersionSet returns the cache names that survive activation.
func (c Config) VersionSet() []string {
	return []string{c.StaticCache, c.APICache, c.ImageCache}
}

func (c Config) inVersionSet(name string) bool {
	for _, n := range c.VersionSet() {
		if n == name {
			return true
		}
	}
	return false
}

// resolve turns a manifest entry or request path into an absolute URL.
func (c Config) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if c.Origin == nil {
		return nil, fmt.Errorf("relative url %q needs an origin", raw)
	}
	return c.Origin.ResolveReference(u), nil
}

// Validate checks the configuration for correctness.
func (c Config) Validate() error {
	if c.StaticCache == "" || c.APICache == "" || c.ImageCache == "" {
		return errors.New("offline: all three cache names are required")
	}
	if c.StaticCache == c.APICache || c.StaticCache == c.ImageCache || c.APICache == c.ImageCache {
		return errors.New("offline: cache names must be distinct")
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("offline: api prefix %q must start with /", c.APIPrefix)
	}
	for _, raw := range c.Precache {
		if _, err := c.resolve(raw); err != nil {
			return fmt.Errorf("offline: precache: %w", err)
		}
	}
	return nil
}

// Command is a control message understood by the registration.
type Command string

// Control commands.
const (
	// CommandSkipWaiting promotes a waiting worker immediately.
	CommandSkipWaiting Command = "SKIP_WAITING"
	// CommandClearCache deletes every named cache, current or not.
	CommandClearCache Command = "CLEAR_CACHE"
)

// ErrUnknownCommand is returned for messages with an unrecognized type tag.
var ErrUnknownCommand = errors.New("offline: unknown command")

// Message is the wire form of a control command.
type Message struct {
	Type Command `json:"type"`
}

// ParseMessage decodes a JSON control message.
func ParseMessage(b []byte) (Command, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return "", fmt.Errorf("decode control message: %w", err)
	}
	switch m.Type {
	case CommandSkipWaiting, CommandClearCache:
		return m.Type, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, m.Type)
	}
}
