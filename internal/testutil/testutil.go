package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/w3bsuki/strike-ab/internal/store"
)

// SetupTestStore creates a SQLite store in a temp dir that is closed and
// removed when the test completes.
func SetupTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// Experiment builds a valid definition with one variant per weight. The
// first variant is "control", the rest "variant-1", "variant-2", ...
func Experiment(id string, weights ...int) *store.Experiment {
	exp := &store.Experiment{
		ID:        id,
		Name:      id,
		Targeting: store.Targeting{TrafficPercentage: 100},
		Metrics:   store.Metrics{Primary: "purchase"},
	}
	for i, w := range weights {
		vid := "control"
		if i > 0 {
			vid = fmt.Sprintf("variant-%d", i)
		}
		exp.Variants = append(exp.Variants, store.Variant{
			ID:     vid,
			Name:   vid,
			Weight: w,
		})
	}
	return exp
}
