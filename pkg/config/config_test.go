package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goopt.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"engine": {"layered_policy": "multi-bounce", "lut": {"mie_samples": 64}},
		"server": {"port": "9090", "webhook_url": "http://sink/hook", "timing_file": "timing.csv"}
	}`), 0o644))

	cfg, srv, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "multi-bounce", cfg.LayeredPolicy)
	assert.Equal(t, 64, cfg.LUT.MieSamples)
	assert.Equal(t, gooptcore.DefaultEpsilon, cfg.Epsilon)
	assert.Equal(t, "9090", srv.Port)
	assert.Equal(t, "http://sink/hook", srv.WebhookURL)
	assert.Equal(t, "timing.csv", srv.TimingFile)
	assert.Equal(t, DefaultServerConfig().WorkerCount, srv.WorkerCount)

	e, err := cfg.Evaluator()
	require.NoError(t, err)
	assert.Equal(t, 64, e.Cache().Options().MieSamples)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, srv, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, DefaultServerConfig(), srv)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"engine": {"epsilon": -1}}`), 0o644))
	_, _, err = Load(bad)
	assert.True(t, errors.Is(err, gooptcore.ErrParameterOutOfRange))

	policy := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policy, []byte(`{"engine": {"layered_policy": "sideways"}}`), 0o644))
	_, _, err = Load(policy)
	assert.True(t, errors.Is(err, gooptcore.ErrUnsupportedComposition))
}

func TestFloatList(t *testing.T) {
	var l FloatList
	require.NoError(t, l.Set("450"))
	require.NoError(t, l.Set("550, 650"))
	assert.Equal(t, FloatList{450, 550, 650}, l)
	assert.Equal(t, "450,550,650", l.String())
	assert.Error(t, l.Set("blue"))
}
