package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredb/diskmanager"
	"coredb/page"
)

const testPageSize = 64

func newTestManager(t *testing.T, poolSize int) *Manager {
	path := filepath.Join(t.TempDir(), "test.db")
	disk, err := diskmanager.Open(path, testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	return NewManager(poolSize, 2, disk, testPageSize)
}

func TestNewPageThenFetchReadRoundTrips(t *testing.T) {
	m := newTestManager(t, 4)

	g, err := m.NewPage()
	require.NoError(t, err)
	id := g.PageID()
	copy(g.Data(), []byte("payload"))
	g.SetDirty(true)
	require.NoError(t, g.Drop())

	rg, err := m.FetchPageRead(id)
	require.NoError(t, err)
	assert.Equal(t, byte('p'), rg.As()[0])
	require.NoError(t, rg.Drop())
}

func TestUnpinPageOnNonResidentPageErrors(t *testing.T) {
	m := newTestManager(t, 4)
	assert.Error(t, m.UnpinPage(page.ID(99), false))
}

func TestPoolFullWhenEveryFrameIsPinned(t *testing.T) {
	m := newTestManager(t, 2)

	g1, err := m.NewPage()
	require.NoError(t, err)
	g2, err := m.NewPage()
	require.NoError(t, err)

	_, err = m.NewPage()
	assert.Error(t, err, "both frames pinned, no victim available")

	require.NoError(t, g1.Drop())
	require.NoError(t, g2.Drop())
}

func TestEvictionWritesBackDirtyPageBeforeReuse(t *testing.T) {
	m := newTestManager(t, 1)

	g1, err := m.NewPage()
	require.NoError(t, err)
	id1 := g1.PageID()
	copy(g1.Data(), []byte("dirty-data"))
	g1.SetDirty(true)
	require.NoError(t, g1.Drop())

	// Only one frame: allocating a second page must evict page id1, flushing
	// it to disk first.
	g2, err := m.NewPage()
	require.NoError(t, err)
	require.NoError(t, g2.Drop())

	rg, err := m.FetchPageRead(id1)
	require.NoError(t, err)
	assert.Equal(t, byte('d'), rg.As()[0], "evicted dirty page was written back and can be reloaded")
	require.NoError(t, rg.Drop())
}

func TestFlushPageClearsDirtyBit(t *testing.T) {
	m := newTestManager(t, 4)
	g, err := m.NewPage()
	require.NoError(t, err)
	id := g.PageID()
	wg, err := m.FetchPageWrite(id)
	require.NoError(t, err)
	copy(wg.AsMut(), []byte("x"))
	require.NoError(t, wg.Drop())
	require.NoError(t, g.Drop())
	assert.True(t, m.frames[m.pageTbl[id]].IsDirty())

	require.NoError(t, m.FlushPage(id))
	assert.False(t, m.frames[m.pageTbl[id]].IsDirty())
}

func TestDeletePageRejectsPinnedPage(t *testing.T) {
	m := newTestManager(t, 4)
	g, err := m.NewPage()
	require.NoError(t, err)
	id := g.PageID()

	assert.Error(t, m.DeletePage(id), "page is still pinned")
	require.NoError(t, g.Drop())
	assert.NoError(t, m.DeletePage(id))
}

func TestWriteGuardMarksDirtyOnlyOnAsMut(t *testing.T) {
	m := newTestManager(t, 4)
	g, err := m.NewPage()
	require.NoError(t, err)
	id := g.PageID()
	require.NoError(t, g.Drop())

	wg, err := m.FetchPageWrite(id)
	require.NoError(t, err)
	_ = wg.As() // read-only access must not dirty the page
	require.NoError(t, wg.Drop())
	assert.False(t, m.frames[m.pageTbl[id]].IsDirty())

	wg, err = m.FetchPageWrite(id)
	require.NoError(t, err)
	_ = wg.AsMut()
	require.NoError(t, wg.Drop())
	assert.True(t, m.frames[m.pageTbl[id]].IsDirty())

	rg, err := m.FetchPageRead(id)
	require.NoError(t, err)
	require.NoError(t, rg.Drop())
	require.NoError(t, m.DeletePage(id))
}
