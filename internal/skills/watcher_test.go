package skills

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedScanner_CachesUntilInvalidated(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "one", manifest("one", "first"))

	c, err := NewCachedScanner(NewScanner("", root), false, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	cat, err := c.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, cat.Project, 1)

	writeSkill(t, root, "two", manifest("two", "second"))

	cat, err = c.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, cat.Project, 1, "cached catalogue is returned")

	c.Invalidate()
	cat, err = c.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, cat.Project, 2)
}

func TestCachedScanner_WatchInvalidates(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "one", manifest("one", "before"))

	c, err := NewCachedScanner(NewScanner("", root), true, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	cat, err := c.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, "before", cat.Project[0].Description)

	writeSkill(t, root, "one", manifest("one", "after"))

	assert.Eventually(t, func() bool {
		cat, err := c.Scan(ctx)
		return err == nil && len(cat.Project) == 1 && cat.Project[0].Description == "after"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCachedScanner_CloseIdempotent(t *testing.T) {
	c, err := NewCachedScanner(NewScanner("", t.TempDir()), true, nil)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
