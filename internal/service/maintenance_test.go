package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maintenance.json")
	store := NewFileMaintenanceStore(path)

	// 文件不存在视为关闭
	on, err := store.IsMaintenance()
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, store.SetMaintenance(true))
	on, err = store.IsMaintenance()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, store.SetMaintenance(false))
	on, err = store.IsMaintenance()
	require.NoError(t, err)
	assert.False(t, on)
}

func TestMaintenanceStoreWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maintenance.json")
	store := NewFileMaintenanceStore(path)

	require.NoError(t, store.SetMaintenance(true))

	// 临时文件在改名后不残留
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"maintenance":true}`, string(data))
}

func TestParseDryRunLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    DryRunLevel
		wantErr bool
	}{
		{"", DryRunOff, false},
		{"off", DryRunOff, false},
		{"full", DryRunFull, false},
		{"no-transfer", DryRunNoTransfer, false},
		{"2", DryRunOff, true},
		{"yes", DryRunOff, true},
	}
	for _, tc := range cases {
		got, err := ParseDryRunLevel(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
