package eventhub

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	"github.com/randalmurphal/eventhub/pkg/eventhub/datastore"
)

func TestNewPlatform_Defaults(t *testing.T) {
	p := NewPlatform(nil, nil)
	require.NotNil(t, p.Logger())
	require.NotNil(t, p.LocalStorage())

	store, err := p.LocalStorage().DataStore("settings")
	require.NoError(t, err)
	require.NoError(t, store.SetString("theme", "dark"))
	assert.Equal(t, "dark", store.GetString("theme", ""))

	assert.Equal(t, runtime.GOOS, p.SystemInfo().OS)
	assert.Equal(t, runtime.NumCPU(), p.SystemInfo().NumCPU)
}

func TestOpenPlatform(t *testing.T) {
	cfg := testConfig()
	cfg.DataStore = config.DataStoreConfig{Driver: config.DriverMemory}
	p, err := OpenPlatform(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.LocalStorage().Close() })

	store, err := p.LocalStorage().DataStore("counters")
	require.NoError(t, err)
	require.NoError(t, store.SetInt("launches", 3))
	assert.Equal(t, int32(3), store.GetInt("launches", 0))

	cfg.DataStore = config.DataStoreConfig{Driver: "floppy"}
	_, err = OpenPlatform(context.Background(), cfg, nil)
	assert.Error(t, err)
}

// TestHandle_Platform tests that modules reach the host's platform.
func TestHandle_Platform(t *testing.T) {
	storage := datastore.NewLocalStorage(datastore.NewMemoryBackend())
	platform := NewPlatform(discardLogger(), storage)
	hub, err := New("platform", platform, WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { hub.DisposeWithin(waitFor) })
	assert.Same(t, platform, hub.Platform())

	m := &testModule{
		name: "settings",
		register: func(h *Handle) error {
			store, err := h.Platform().LocalStorage().DataStore("settings")
			if err != nil {
				return err
			}
			return store.SetBool("registered", true)
		},
	}
	registerAndWait(t, hub, m)

	store, err := storage.DataStore("settings")
	require.NoError(t, err)
	assert.True(t, store.GetBool("registered", false))
}
