// Package featureflags evaluates client behaviour switches from a key=value list.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// ToggleSequenceGuard discards toggle responses older than the latest
// request dispatched for the same (viewer, target) pair.
const ToggleSequenceGuard = "toggle_sequence_guard"

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "toggle_sequence_guard=on,new_overlay=25%"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := normalize(parts[0])
		value := normalize(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for a given viewer.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic viewer rollout, e.g. 25%)
func (m *Manager) Enabled(name, viewerID string) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	if strings.HasSuffix(value, "%") {
		pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil || pct <= 0 {
			return false
		}
		if pct >= 100 {
			return true
		}
		if viewerID == "" {
			return false
		}
		return rolloutBucket(name, viewerID) < pct
	}

	return false
}

// Snapshot returns evaluated flag status for one viewer.
func (m *Manager) Snapshot(viewerID string) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, viewerID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, viewerID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + viewerID))
	return int(h.Sum32() % 100)
}
