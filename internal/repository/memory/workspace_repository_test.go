package memory

import (
	"testing"
	"time"

	"discussion-companion-be/internal/discussion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceRepositoryGetOrCreate(t *testing.T) {
	repo := NewWorkspaceRepository(time.Hour, nil)

	calls := 0
	create := func() *discussion.Workspace {
		calls++
		return discussion.NewWorkspace(nil)
	}

	first, created := repo.GetOrCreate("u1", create)
	require.True(t, created)
	second, created := repo.GetOrCreate("u1", create)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	other, created := repo.GetOrCreate("u2", create)
	assert.True(t, created)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, repo.Count())
}

func TestWorkspaceRepositoryDeleteRunsEvict(t *testing.T) {
	var evicted []string
	repo := NewWorkspaceRepository(time.Hour, func(userID string, _ *discussion.Workspace) {
		evicted = append(evicted, userID)
	})

	repo.GetOrCreate("u1", func() *discussion.Workspace { return discussion.NewWorkspace(nil) })
	repo.Delete("u1")

	_, found := repo.Get("u1")
	assert.False(t, found)
	assert.Equal(t, []string{"u1"}, evicted)
}

func TestWorkspaceRepositoryExpires(t *testing.T) {
	repo := NewWorkspaceRepository(20*time.Millisecond, nil)
	repo.GetOrCreate("u1", func() *discussion.Workspace { return discussion.NewWorkspace(nil) })

	require.Eventually(t, func() bool {
		_, found := repo.Get("u1")
		return !found
	}, time.Second, 10*time.Millisecond)
}
