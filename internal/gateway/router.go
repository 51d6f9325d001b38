package gateway

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/scholaris/school-gateway/pkg/types"
)

var resourcePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Route is a normalized request path: {resource}/{action?}/{id?}
type Route struct {
	Resource string
	Action   string
	ID       *int64
}

// Key is "resource/action", used for policy and log lookups
func (r Route) Key() string {
	return r.Resource + "/" + r.Action
}

// Call is everything a resource handler receives about an admitted request
type Call struct {
	Action    string
	ID        *int64
	Method    string
	Input     map[string]interface{}
	Principal types.Principal
	Request   *http.Request
}

// Handler is implemented by every resource handler behind the gateway. It owns
// its response, including 405 and 400 outcomes.
type Handler interface {
	Handle(ctx context.Context, w http.ResponseWriter, call *Call)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, w http.ResponseWriter, call *Call)

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, w http.ResponseWriter, call *Call) {
	f(ctx, w, call)
}

// Registry maps resource names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds resource to h, replacing any previous handler
func (reg *Registry) Register(resource string, h Handler) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.handlers[resource] = h
}

// Lookup returns the handler for resource
func (reg *Registry) Lookup(resource string) (Handler, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	h, ok := reg.handlers[resource]
	return h, ok
}

// Resources lists registered resource names
func (reg *Registry) Resources() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.handlers))
	for name := range reg.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Router resolves request paths against the registry
type Router struct {
	basePath string
	registry *Registry
}

// NewRouter creates a router serving paths below basePath
func NewRouter(basePath string, registry *Registry) *Router {
	return &Router{basePath: "/" + strings.Trim(basePath, "/"), registry: registry}
}

// Route parses path and finds its handler. Unknown resources and malformed
// paths are NotFound.
func (rt *Router) Route(path string) (Route, Handler, error) {
	rel, ok := rt.stripBase(path)
	if !ok {
		return Route{}, nil, notFound()
	}

	route, err := ParseRoute(rel)
	if err != nil {
		return Route{}, nil, err
	}

	h, ok := rt.registry.Lookup(route.Resource)
	if !ok {
		return Route{}, nil, notFound()
	}
	return route, h, nil
}

func (rt *Router) stripBase(path string) (string, bool) {
	if rt.basePath == "/" {
		return path, true
	}
	if path == rt.basePath {
		return "", true
	}
	if strings.HasPrefix(path, rt.basePath+"/") {
		return path[len(rt.basePath):], true
	}
	return "", false
}

// ParseRoute splits a base-relative path into its route parts
func ParseRoute(path string) (Route, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return Route{}, notFound()
	}

	segments := strings.Split(trimmed, "/")
	if len(segments) > 3 {
		return Route{}, notFound()
	}

	route := Route{Resource: segments[0]}
	if !resourcePattern.MatchString(route.Resource) {
		return Route{}, notFound()
	}

	if len(segments) > 1 {
		route.Action = segments[1]
		if route.Action == "" || !resourcePattern.MatchString(route.Action) {
			return Route{}, notFound()
		}
	}

	if len(segments) == 3 {
		id, err := strconv.ParseInt(segments[2], 10, 64)
		if err != nil || id <= 0 {
			return Route{}, notFound()
		}
		route.ID = &id
	}

	return route, nil
}

func notFound() *types.GatewayError {
	return types.NewNotFoundError(types.ErrCodeNotFound, "resource not found")
}
