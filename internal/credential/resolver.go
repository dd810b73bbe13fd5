// Package credential defines the external-collaborator boundary spec.md
// treats as opaque: the core asks "give me a token for this provider" and
// never learns whether the answer came from an environment variable, a
// keychain, or an on-disk config file. This package ships only the
// env-var-backed implementation; keychain/disk discovery is out of scope
// (spec.md §1).
package credential

import (
	"fmt"
	"os"
	"sync"
)

// Resolver is the opaque capability the proxy pipeline calls to get a
// provider's credential. Implementations decide their own precedence and
// caching; the core has no visibility into either.
type Resolver interface {
	Resolve(provider string) (string, error)
	Invalidate()
}

// EnvResolver resolves credentials from a fixed set of environment
// variable names, one per provider, matching the names spec.md §6
// enumerates as consumed (by the resolver, not the core, directly).
type EnvResolver struct {
	mu   sync.RWMutex
	vars map[string]string // provider -> env var name
}

// NewEnvResolver builds a resolver over the given provider -> env var
// name table.
func NewEnvResolver(vars map[string]string) *EnvResolver {
	return &EnvResolver{vars: vars}
}

// DefaultEnvVars is the provider -> environment variable mapping spec.md
// §6 names.
func DefaultEnvVars() map[string]string {
	return map[string]string{
		"anthropic":  "ANTHROPIC_API_KEY",
		"openai":     "OPENAI_API_KEY",
		"blockrun":   "BLOCKRUN_WALLET_KEY",
		"claude-oauth": "CLAUDE_CODE_OAUTH_TOKEN",
	}
}

// Resolve reads the environment variable configured for provider. It does
// not cache; os.Getenv is already effectively free, and "invalidate" has
// no state to drop beyond what POST /reload already signals upstream.
func (r *EnvResolver) Resolve(provider string) (string, error) {
	r.mu.RLock()
	name, ok := r.vars[provider]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("credential: no environment variable configured for provider %q", provider)
	}
	val := os.Getenv(name)
	if val == "" {
		return "", fmt.Errorf("credential: %s is not set", name)
	}
	return val, nil
}

// Invalidate is a no-op for EnvResolver: there is no cache to drop. It
// exists so POST /reload can call it uniformly across Resolver
// implementations (spec.md §9: "the resolver contract is opaque to the
// core").
func (r *EnvResolver) Invalidate() {}
