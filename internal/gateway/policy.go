package gateway

import (
	"strings"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/types"
)

// AnyAuthenticated as a required role admits every resolved principal
const AnyAuthenticated = "*"

// RouteSet matches routes against "resource", "resource/*" and
// "resource/action" patterns
type RouteSet struct {
	exact     map[string]struct{}
	wildcards map[string]struct{}
}

// NewRouteSet parses patterns into a RouteSet
func NewRouteSet(patterns []string) RouteSet {
	set := RouteSet{
		exact:     make(map[string]struct{}),
		wildcards: make(map[string]struct{}),
	}
	for _, pattern := range patterns {
		resource, action := splitPattern(pattern)
		if resource == "" {
			continue
		}
		if action == "*" {
			set.wildcards[resource] = struct{}{}
			continue
		}
		set.exact[resource+"/"+action] = struct{}{}
	}
	return set
}

// Contains reports whether route matches any pattern
func (s RouteSet) Contains(route Route) bool {
	if _, ok := s.wildcards[route.Resource]; ok {
		return true
	}
	_, ok := s.exact[route.Key()]
	return ok
}

// splitPattern normalizes "resource" to ("resource", "*")
func splitPattern(pattern string) (string, string) {
	pattern = strings.ToLower(strings.Trim(strings.TrimSpace(pattern), "/"))
	resource, action, ok := strings.Cut(pattern, "/")
	if !ok || action == "" {
		action = "*"
	}
	return resource, action
}

// Policy is the route policy table
type Policy struct {
	overrideRole string
	public       RouteSet
	required     map[string][]string
}

// NewPolicy builds the policy table from configuration
func NewPolicy(cfg *config.PolicyConfig) *Policy {
	p := &Policy{
		overrideRole: strings.ToLower(cfg.OverrideRole),
		public:       NewRouteSet(cfg.PublicRoutes),
		required:     make(map[string][]string, len(cfg.Routes)),
	}
	for pattern, roles := range cfg.Routes {
		resource, action := splitPattern(pattern)
		p.required[resource+"/"+action] = types.NormalizeRoles(roles)
	}
	return p
}

// IsPublic reports whether route skips identity resolution
func (p *Policy) IsPublic(route Route) bool {
	return p.public.Contains(route)
}

// Required returns the roles required by route. The exact action entry wins
// over the resource wildcard; ok is false when neither is listed.
func (p *Policy) Required(route Route) ([]string, bool) {
	if roles, ok := p.required[route.Key()]; ok {
		return roles, true
	}
	roles, ok := p.required[route.Resource+"/*"]
	return roles, ok
}

// Authorize admits principal to route or returns a Forbidden error
func (p *Policy) Authorize(principal types.Principal, route Route) error {
	if p.IsPublic(route) {
		return nil
	}

	roles, listed := p.Required(route)
	if listed && len(roles) == 0 {
		return nil
	}

	if p.overrideRole != "" && principal.HasRole(p.overrideRole) {
		return nil
	}

	if listed {
		for _, role := range roles {
			if role == AnyAuthenticated && !principal.IsAnonymous() {
				return nil
			}
		}
		if principal.HasAnyRole(roles) {
			return nil
		}
	}

	return types.NewAuthorizationError(types.ErrCodeForbidden, "insufficient role for this resource")
}
