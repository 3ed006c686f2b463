// Package registry holds the provider profiles the rest of the pipeline
// reads at call time. Profiles are created and edited externally (settings
// UI, config file); this package only normalizes and serves them.
package registry

import (
	"sort"
	"strings"

	"github.com/jmelis/sotto/internal/jsonval"
)

// Reserved ids of the built-in hosted providers. Any other id is namespaced
// with a "custom:" prefix so a user-defined provider can never shadow a
// future built-in.
const (
	KeyOpenAI = "openai"
	KeyGroq   = "groq"
)

const CustomPrefix = "custom:"

// ReasoningConfig is the per-model reasoning knob for one provider: the
// request field to inject and its value (effort string, thinking flag, ...).
type ReasoningConfig struct {
	Param   string
	Value   jsonval.Value
	Enabled bool
}

// Profile identifies one language-model backend.
type Profile struct {
	Key           string // normalized, see NormalizeKey
	Name          string // display name, optional
	BaseURL       string
	APIKey        string
	Models        []string
	SelectedModel string
	Reasoning     map[string]ReasoningConfig // keyed by model name
}

// Display returns the profile's display name, falling back to the key with
// the custom namespace stripped.
func (p Profile) Display() string {
	if p.Name != "" {
		return p.Name
	}
	return strings.TrimPrefix(p.Key, CustomPrefix)
}

// ReasoningFor looks up the reasoning configuration for a model. Callers
// still need to honor the Enabled flag.
func (p Profile) ReasoningFor(model string) (ReasoningConfig, bool) {
	rc, ok := p.Reasoning[model]
	return rc, ok
}

// NormalizeKey maps a raw provider id to its storage key. The reserved
// lowercase ids pass through verbatim; everything else gains the custom
// prefix with the original spelling preserved. Already-prefixed ids are not
// prefixed twice. Empty input stays empty.
func NormalizeKey(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if id == KeyOpenAI || id == KeyGroq {
		return id
	}
	if strings.HasPrefix(id, CustomPrefix) {
		return id
	}
	return CustomPrefix + id
}

// IsBuiltin reports whether key names one of the hosted built-ins.
func IsBuiltin(key string) bool {
	return key == KeyOpenAI || key == KeyGroq
}

// Reconcile drops selected-model entries that no longer resolve: a selection
// survives only when its provider currently lists that exact model. Keys on
// both maps are normalized before matching.
func Reconcile(available map[string][]string, selected map[string]string) map[string]string {
	models := make(map[string][]string, len(available))
	for key, list := range available {
		models[NormalizeKey(key)] = list
	}
	out := make(map[string]string, len(selected))
	for key, model := range selected {
		key = NormalizeKey(key)
		for _, m := range models[key] {
			if m == model {
				out[key] = model
				break
			}
		}
	}
	return out
}

// Registry is a read-mostly set of profiles keyed by normalized id.
type Registry struct {
	profiles map[string]Profile
}

func New(profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		r.Put(p)
	}
	return r
}

// Put stores a profile under its normalized key. Profiles with an empty key
// are ignored.
func (r *Registry) Put(p Profile) {
	p.Key = NormalizeKey(p.Key)
	if p.Key == "" {
		return
	}
	r.profiles[p.Key] = p
}

func (r *Registry) Get(id string) (Profile, bool) {
	p, ok := r.profiles[NormalizeKey(id)]
	return p, ok
}

// Keys returns all profile keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Profiles returns all profiles ordered by key.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, k := range r.Keys() {
		out = append(out, r.profiles[k])
	}
	return out
}
