package diskmanager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/page"
)

const testPageSize = 64

func openTestManager(t *testing.T) *Manager {
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := Open(path, testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAllocatePageIsMonotonicFromZero(t *testing.T) {
	m := openTestManager(t)
	assert.Equal(t, page.ID(0), m.AllocatePage())
	assert.Equal(t, page.ID(1), m.AllocatePage())
	assert.Equal(t, page.ID(2), m.AllocatePage())
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	m := openTestManager(t)
	id := m.AllocatePage()

	want := make([]byte, testPageSize)
	copy(want, []byte("hello disk manager"))
	require.NoError(t, m.WritePage(id, want))

	got := make([]byte, testPageSize)
	require.NoError(t, m.ReadPage(id, got))
	assert.Equal(t, want, got)
}

func TestReadPageBeyondEOFReadsZeros(t *testing.T) {
	m := openTestManager(t)
	id := m.AllocatePage()

	buf := make([]byte, testPageSize)
	require.NoError(t, m.ReadPage(id, buf))
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestReadWriteRejectWrongSizedBuffers(t *testing.T) {
	m := openTestManager(t)
	id := m.AllocatePage()

	assert.Error(t, m.WritePage(id, make([]byte, testPageSize-1)))
	assert.Error(t, m.ReadPage(id, make([]byte, testPageSize+1)))
}

func TestReopenPicksUpNextIDFromFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	m1, err := Open(path, testPageSize)
	require.NoError(t, err)
	id0 := m1.AllocatePage()
	id1 := m1.AllocatePage()
	require.NoError(t, m1.WritePage(id0, make([]byte, testPageSize)))
	require.NoError(t, m1.WritePage(id1, make([]byte, testPageSize)))
	require.NoError(t, m1.Close())

	m2, err := Open(path, testPageSize)
	require.NoError(t, err)
	defer m2.Close()
	assert.Equal(t, page.ID(2), m2.AllocatePage())
}
