// Package policy provides tool authorization and access control for the
// agent runtime's HookChain.beforeToolCall gate. It defines profiles,
// policies, and groups for managing which tools a session is allowed to
// invoke.
package policy

import (
	"strings"
)

// Profile defines a pre-configured tool access profile that provides
// sensible defaults for common use cases like coding, messaging, or full access.
type Profile string

const (
	// ProfileMinimal allows only status tools.
	ProfileMinimal Profile = "minimal"

	// ProfileCoding allows filesystem, runtime, and web tools.
	ProfileCoding Profile = "coding"

	// ProfileMessaging allows messaging tools.
	ProfileMessaging Profile = "messaging"

	// ProfileFull allows all tools (except explicitly denied).
	ProfileFull Profile = "full"
)

// Policy defines tool access rules for an agent combining a profile with
// explicit allow and deny lists. Deny rules always take precedence over
// allow rules.
type Policy struct {
	// Profile is a pre-configured access level.
	Profile Profile `json:"profile,omitempty" yaml:"profile"`

	// Allow explicitly allows these tools (in addition to profile).
	Allow []string `json:"allow,omitempty" yaml:"allow"`

	// Deny explicitly denies these tools (overrides allow).
	Deny []string `json:"deny,omitempty" yaml:"deny"`

	// ByProvider applies additional policy rules scoped to a tool's
	// provider key (e.g. "runtime" for built-in tools).
	ByProvider map[string]*Policy `json:"by_provider,omitempty" yaml:"by_provider,omitempty"`
}

// ToolGroup defines a named group of tools for convenient bulk permissions.
type ToolGroup struct {
	Name  string
	Tools []string
}

// DefaultGroups are the built-in tool groups.
// Groups can be referenced in policies using their key (e.g., "group:fs").
var DefaultGroups = map[string][]string{
	"group:fs":      {"read", "write", "edit", "exec"},
	"group:web":     {"web_search", "web_fetch"},
	"group:runtime": {"execute_code"},
	"group:memory":  {"memory_search", "memory_get"},
	"group:jobs":    {"job_status"},

	"group:all": {
		"read", "write", "edit", "exec",
		"web_search", "web_fetch",
		"execute_code",
		"memory_search", "memory_get",
		"job_status",
	},
}

// ProfileDefaults defines the default allow lists for each profile.
var ProfileDefaults = map[Profile]*Policy{
	ProfileMinimal: {
		Allow: []string{"status"},
	},
	ProfileCoding: {
		Allow: []string{"group:fs", "group:runtime", "group:web", "group:memory"},
	},
	ProfileMessaging: {
		Allow: []string{"send_message", "status"},
	},
	ProfileFull: {
		// Full profile allows everything not explicitly denied.
	},
}

// ToolAliases maps alternative tool names to their canonical form.
var ToolAliases = map[string]string{
	"bash":        "exec",
	"shell":       "exec",
	"apply-patch": "edit",
	"apply_patch": "edit",
	"sandbox":     "execute_code",
	"websearch":   "web_search",
	"webfetch":    "web_fetch",
}

// NormalizeTool normalizes a tool name to its canonical form by converting
// to lowercase and resolving known aliases.
func NormalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := ToolAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// NormalizeTools normalizes a list of tool names to their canonical forms.
func NormalizeTools(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		normalized := NormalizeTool(name)
		if normalized != "" {
			result = append(result, normalized)
		}
	}
	return result
}

// PolicyBuilder provides a fluent interface for constructing policies.
type PolicyBuilder struct {
	policy *Policy
}

// NewPolicyBuilder creates a new policy builder.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{policy: &Policy{}}
}

// WithProfile sets the base profile.
func (b *PolicyBuilder) WithProfile(profile Profile) *PolicyBuilder {
	b.policy.Profile = profile
	return b
}

// Allow adds tools (or "group:" references) to the allow list.
func (b *PolicyBuilder) Allow(tools ...string) *PolicyBuilder {
	for _, t := range tools {
		b.policy.Allow = append(b.policy.Allow, NormalizeTool(t))
	}
	return b
}

// AllowGroup allows a named tool group, adding the "group:" prefix if absent.
func (b *PolicyBuilder) AllowGroup(groups ...string) *PolicyBuilder {
	for _, g := range groups {
		if !strings.HasPrefix(g, "group:") {
			g = "group:" + g
		}
		b.policy.Allow = append(b.policy.Allow, g)
	}
	return b
}

// Deny adds tools to the deny list.
func (b *PolicyBuilder) Deny(tools ...string) *PolicyBuilder {
	for _, t := range tools {
		b.policy.Deny = append(b.policy.Deny, NormalizeTool(t))
	}
	return b
}

// WithProviderPolicy sets a provider-scoped override policy.
func (b *PolicyBuilder) WithProviderPolicy(provider string, policy *Policy) *PolicyBuilder {
	if b.policy.ByProvider == nil {
		b.policy.ByProvider = make(map[string]*Policy)
	}
	b.policy.ByProvider[provider] = policy
	return b
}

// Build returns the constructed policy.
func (b *PolicyBuilder) Build() *Policy {
	return b.policy
}
