package policy

import "testing"

func TestResolverAllowsAliasedTool(t *testing.T) {
	resolver := NewResolver()
	resolver.RegisterAlias("bash", "exec")

	policy := &Policy{Allow: []string{"exec"}}
	if !resolver.IsAllowed(policy, "bash") {
		t.Fatal("expected aliased tool to be allowed")
	}
}

func TestResolverAllowsViaGroupWildcard(t *testing.T) {
	resolver := NewResolver()

	policy := &Policy{Allow: []string{"group:fs"}}
	if !resolver.IsAllowed(policy, "edit") {
		t.Fatal("expected group member to be allowed")
	}
	if resolver.IsAllowed(policy, "web_search") {
		t.Fatal("expected tool outside the group to be denied")
	}
}

func TestResolverDenyOverridesAllow(t *testing.T) {
	resolver := NewResolver()

	policy := &Policy{Profile: ProfileFull, Deny: []string{"exec"}}
	if resolver.IsAllowed(policy, "exec") {
		t.Fatal("expected deny to win over full profile")
	}
	if !resolver.IsAllowed(policy, "read") {
		t.Fatal("expected full profile to allow undenied tools")
	}
}

func TestResolverWildcardPattern(t *testing.T) {
	resolver := NewResolver()
	resolver.AddGroup("group:custom", nil)

	policy := &Policy{Allow: []string{"custom:*"}}
	if !resolver.IsAllowed(policy, "custom:anything") {
		t.Fatal("expected namespace wildcard to match")
	}
}
