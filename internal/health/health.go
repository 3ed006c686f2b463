// Package health probes configured providers so `sotto doctor` can report
// which endpoints are reachable before a session fails mid-dictation.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmelis/sotto/internal/registry"
)

// ModelLister is the slice of the provider client the checks need. Going
// through the client keeps auth behavior (local endpoints get no
// Authorization header) identical to real sessions.
type ModelLister interface {
	ListModels(ctx context.Context, profile registry.Profile) ([]string, error)
}

type Status struct {
	Key       string
	Name      string
	BaseURL   string
	Reachable bool
	Models    []string
	Error     string
	Latency   time.Duration
}

const checkTimeout = 10 * time.Second

// Check verifies that one provider endpoint is reachable and responding by
// listing its models.
func Check(ctx context.Context, lister ModelLister, profile registry.Profile) Status {
	s := Status{Key: profile.Key, Name: profile.Display(), BaseURL: profile.BaseURL}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	models, err := lister.ListModels(ctx, profile)
	s.Latency = time.Since(start)

	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.Reachable = true
	s.Models = models
	return s
}

// CheckAll probes every profile in order.
func CheckAll(ctx context.Context, lister ModelLister, profiles []registry.Profile) []Status {
	out := make([]Status, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, Check(ctx, lister, p))
	}
	return out
}

// CheckModel verifies that a specific model is actually served by the
// profile's endpoint. Endpoints that list no models at all are not treated
// as failures; several local servers only expose what is loaded.
func CheckModel(ctx context.Context, lister ModelLister, profile registry.Profile, model string) error {
	s := Check(ctx, lister, profile)
	if !s.Reachable {
		return fmt.Errorf("provider %s not reachable: %s", profile.Display(), s.Error)
	}
	if len(s.Models) == 0 {
		return nil
	}
	for _, m := range s.Models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q not found on %s (available: %s)", model, profile.Display(), strings.Join(s.Models, ", "))
}
