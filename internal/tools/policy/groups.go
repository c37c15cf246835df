package policy

// ToolProfiles maps profile names to ready-made policies, for config-driven
// lookup by name (e.g. a RuntimeConfig field naming a profile).
var ToolProfiles = map[string]*Policy{
	"coding": {
		Profile: ProfileCoding,
		Allow: []string{
			"group:fs",
			"group:runtime",
			"group:web",
			"group:memory",
		},
	},
	"messaging": {
		Profile: ProfileMessaging,
		Allow:   []string{"group:messaging", "status"},
	},
	"readonly": {
		Allow: []string{"read", "group:web", "group:memory", "job_status"},
	},
	"full": {
		Profile: ProfileFull,
	},
	"minimal": {
		Profile: ProfileMinimal,
		Allow:   []string{"status"},
	},
}

// GetProfilePolicy returns the policy for a named profile.
// Returns nil if the profile doesn't exist.
func GetProfilePolicy(name string) *Policy {
	return ToolProfiles[name]
}

// ListGroups returns all available group names.
func ListGroups() []string {
	groups := make([]string, 0, len(DefaultGroups))
	for name := range DefaultGroups {
		groups = append(groups, name)
	}
	return groups
}

// ListProfiles returns all available profile names.
func ListProfiles() []string {
	profiles := make([]string, 0, len(ToolProfiles))
	for name := range ToolProfiles {
		profiles = append(profiles, name)
	}
	return profiles
}

// IsGroup returns true if the name is a valid group reference.
func IsGroup(name string) bool {
	_, ok := DefaultGroups[name]
	return ok
}

// GetGroupTools returns the tools in a group, or nil if the group doesn't exist.
func GetGroupTools(name string) []string {
	tools, ok := DefaultGroups[name]
	if !ok {
		return nil
	}
	result := make([]string, len(tools))
	copy(result, tools)
	return result
}
