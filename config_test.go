package scriptgate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
)

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	assert.NoError(t, config.Validate())

	config.ApprovalTimeoutSec = -1
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.CancellationGraceSec = -1
	assert.Error(t, config.Validate())
}

func TestLoadConfig(t *testing.T) {
	document := `
environment: staging
approvalTimeoutSec: 90
cancellationGraceSec: 15
deniedTools:
  - rm_rf
`
	location := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(location, []byte(document), 0o644))

	config, err := LoadConfig(context.Background(), afs.New(), location)
	assert.NoError(t, err)
	assert.Equal(t, "staging", config.Environment)
	assert.Equal(t, []string{"rm_rf"}, config.DeniedTools)

	assert.Equal(t, 90*time.Second, config.approvalConfig().DefaultTimeout)
	assert.Equal(t, 15*time.Second, config.dispatchConfig().CancellationGrace)

	// Unset durations keep their defaults.
	defaults := DefaultConfig()
	assert.Equal(t, 30*time.Second, defaults.dispatchConfig().CancellationGrace)
	assert.Equal(t, 10*time.Minute, defaults.orchestratorConfig().StreamMaxDuration)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(context.Background(), afs.New(), "/nonexistent/config.yaml")
	assert.Error(t, err)

	location := filepath.Join(t.TempDir(), "broken.yaml")
	assert.NoError(t, os.WriteFile(location, []byte("environment: ["), 0o644))
	_, err = LoadConfig(context.Background(), afs.New(), location)
	assert.Error(t, err)
}
