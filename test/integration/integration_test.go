//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nholik/stack-updater/internal/catalog"
	"github.com/nholik/stack-updater/internal/logging"
	"github.com/nholik/stack-updater/internal/resolver"
	"github.com/nholik/stack-updater/internal/stack"
	"github.com/nholik/stack-updater/internal/syncer"
)

// TestIntegrationCatalog resolves a real version locator against the IBM
// Cloud catalog.
//
// Prerequisites:
//   - IBM_CLOUD_API_KEY set to a key with catalog read access
//   - TEST_VERSION_LOCATOR set to a version locator visible to that key
//
// Run with: go test -tags=integration -v ./test/integration/...
func TestIntegrationCatalog(t *testing.T) {
	apiKey := os.Getenv("IBM_CLOUD_API_KEY")
	locator := os.Getenv("TEST_VERSION_LOCATOR")
	if apiKey == "" || locator == "" {
		t.Skip("IBM_CLOUD_API_KEY and TEST_VERSION_LOCATOR are required")
	}

	logger := logging.NewWithLevel("debug")
	tokens, err := catalog.NewTokenSource(logger, getEnv("TEST_IAM_URL", catalog.DefaultIAMURL), apiKey)
	if err != nil {
		t.Fatalf("create token source: %v", err)
	}
	client, err := catalog.NewHTTPClient(logger, getEnv("TEST_CATALOG_URL", catalog.DefaultCatalogURL), tokens)
	if err != nil {
		t.Fatalf("create catalog client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	t.Run("FetchVersion", func(t *testing.T) {
		offering, found, err := client.FetchVersion(ctx, locator)
		if err != nil {
			t.Fatalf("fetch version: %v", err)
		}
		if !found {
			t.Fatalf("version %s not found", locator)
		}
		desc, err := resolver.Describe(offering)
		if err != nil {
			t.Fatalf("describe offering: %v", err)
		}
		t.Logf("offering=%s kind=%s flavor=%s version=%s", desc.OfferingID, desc.Kind, desc.Flavor, desc.Version)
	})

	t.Run("DryRunSync", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stack.json")
		doc := []byte(`{"members":[{"name":"integration","version_locator":"` + locator + `"}]}`)
		if err := os.WriteFile(path, doc, 0o600); err != nil {
			t.Fatalf("write stack: %v", err)
		}

		s := syncer.New(logger, stack.NewFileStore(path, logger), client, syncer.WithDryRun(true))
		result, err := s.Run(ctx)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		for _, failure := range result.Failures {
			t.Errorf("member failed: %s", failure)
		}
		if result.Written {
			t.Fatalf("dry run must not write")
		}
	})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
