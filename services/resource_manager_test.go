package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	waerrors "go.pilab.hu/wabroker/errors"
)

func TestResourceManager_AcquireReusesLiveHandle(t *testing.T) {
	driver := &fakeDriver{}
	m := NewResourceManager(driver, "https://example.test", 5, time.Millisecond)

	first, err := m.Acquire(context.Background(), "s-1")
	require.NoError(t, err)
	second, err := m.Acquire(context.Background(), "s-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, driver.openCount(), "a live handle is reused, not relaunched")
}

func TestResourceManager_AcquireRelaunchesDeadHandle(t *testing.T) {
	driver := &fakeDriver{}
	m := NewResourceManager(driver, "https://example.test", 5, time.Millisecond)

	first, err := m.Acquire(context.Background(), "s-1")
	require.NoError(t, err)
	first.Page.(*fakePage).kill()

	second, err := m.Acquire(context.Background(), "s-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, driver.openCount())
}

func TestResourceManager_AcquireRetriesThenExhausts(t *testing.T) {
	driver := &fakeDriver{failures: 1000}
	m := NewResourceManager(driver, "https://example.test", 5, time.Millisecond)

	_, err := m.Acquire(context.Background(), "s-1")
	require.Error(t, err)
	assert.True(t, waerrors.IsCode(err, waerrors.ResourceExhausted))
	assert.Equal(t, 5, driver.openCount(), "exactly the attempt budget, no more")

	_, ok := m.Lookup("s-1")
	assert.False(t, ok, "no half-initialized handle after exhaustion")
}

func TestResourceManager_AcquireSucceedsAfterTransientFailures(t *testing.T) {
	driver := &fakeDriver{failures: 3}
	m := NewResourceManager(driver, "https://example.test", 5, time.Millisecond)

	handle, err := m.Acquire(context.Background(), "s-1")
	require.NoError(t, err)
	assert.True(t, handle.Page.Alive())
	assert.Equal(t, 4, driver.openCount())
}

func TestResourceManager_ReleaseIsIdempotent(t *testing.T) {
	driver := &fakeDriver{}
	m := NewResourceManager(driver, "https://example.test", 5, time.Millisecond)

	handle, err := m.Acquire(context.Background(), "s-1")
	require.NoError(t, err)
	handle.StartMonitoring()

	m.Release("s-1")
	assert.True(t, handle.Page.(*fakePage).isClosed())
	assert.False(t, handle.IsMonitoring(), "release clears the monitor flag")

	m.Release("s-1")
	m.Release("never-existed")
}

func TestResourceManager_ConcurrentAcquireSingleLaunch(t *testing.T) {
	driver := &fakeDriver{}
	m := NewResourceManager(driver, "https://example.test", 5, time.Millisecond)

	var wg sync.WaitGroup
	handles := make([]*AutomationHandle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle, err := m.Acquire(context.Background(), "s-1")
			require.NoError(t, err)
			handles[i] = handle
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, driver.openCount(), "concurrent acquires for one session launch once")
	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}
}

func TestResourceManager_ShutdownDrainsEverything(t *testing.T) {
	driver := &fakeDriver{}
	m := NewResourceManager(driver, "https://example.test", 5, time.Millisecond)

	a, err := m.Acquire(context.Background(), "s-1")
	require.NoError(t, err)
	b, err := m.Acquire(context.Background(), "s-2")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	assert.True(t, a.Page.(*fakePage).isClosed())
	assert.True(t, b.Page.(*fakePage).isClosed())
	assert.True(t, driver.closed)
}
