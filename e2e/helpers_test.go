//go:build e2e

package e2e

import (
	"fmt"
	"io"
	"testing"

	"github.com/fgeck/art-assistant/internal/config"
	"github.com/fgeck/art-assistant/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// loadConfig builds a configuration rooted at root. Empty URLs leave the
// matching backend without a credential.
func loadConfig(t *testing.T, root, nanoURL, grokURL string) *models.AppConfig {
	t.Helper()

	nanoKey, grokKey := "", ""
	if nanoURL != "" {
		nanoKey = "nano-test-key"
	}
	if grokURL != "" {
		grokKey = "xai-test-key"
	}

	yaml := fmt.Sprintf(`
root_dir: %q
backends:
  nanogpt:
    api_key: %q
    base_url: %q
  grok:
    api_key: %q
    base_url: %q
dispatch:
  timeout: 2s
  max_inflight: 2
watchdog:
  retention:
    keep_last: 3
`, root, nanoKey, nanoURL, grokKey, grokURL)

	cfg, err := config.NewParser().LoadReader(yaml)
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))
	return cfg
}
