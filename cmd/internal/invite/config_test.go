package invite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("SECURECHAT_INVITE_LINK_BASE", "https://chat.example.org")
	t.Setenv("SECURECHAT_INVITE_STRICT_PERSISTENCE", "true")
	t.Setenv("SECURECHAT_INVITE_SWEEP_INTERVAL", "30s")
	t.Setenv("SECURECHAT_INVITE_MAX_EMAIL_BATCH", "5")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "https://chat.example.org", cfg.LinkBase)
	require.True(t, cfg.StrictPersistence)
	require.Equal(t, 30*time.Second, cfg.SweepInterval)
	require.Equal(t, 5, cfg.MaxEmailBatch)

	svc, err := NewService(newFixture(t).store, cfg.Options()...)
	require.NoError(t, err)
	require.True(t, svc.strict)
	require.Equal(t, "https://chat.example.org/invite/c1/ABCD1234", svc.linker.Build("c1", "ABCD1234"))
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("SECURECHAT_INVITE_MAX_EMAIL_BATCH", "0")
	_, err := LoadConfigFromEnv()
	require.Error(t, err)

	t.Setenv("SECURECHAT_INVITE_MAX_EMAIL_BATCH", "many")
	_, err = LoadConfigFromEnv()
	require.Error(t, err)
}
