package cartsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarroso/giftregistry/internal/cartapi"
)

func newTestChecker(t *testing.T) (*Checker, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewChecker(env.syncer, env.remote, testLogger()), env
}

func TestCheck_EmptyCart_NoNetworkCall(t *testing.T) {
	t.Parallel()

	checker, env := newTestChecker(t)
	env.login(1)

	result := checker.Check(context.Background())

	assert.Empty(t, result.Unavailable)
	assert.Empty(t, result.Others)
	assert.Equal(t, 0, env.remote.availCalls)
	assert.Equal(t, 0, env.remote.othersCalls)
}

func TestCheck_FlagsPurchasedItems(t *testing.T) {
	t.Parallel()

	checker, env := newTestChecker(t)
	env.login(1)
	ctx := context.Background()
	require.NoError(t, env.syncer.Add(ctx, gift(3, "vase", 2000)))
	require.NoError(t, env.syncer.Add(ctx, gift(9, "blender", 12000)))

	env.remote.availResult = &cartapi.AvailabilityResult{UnavailableGiftIDs: []int64{3}}
	env.remote.othersResult = map[int64]int{9: 1}

	result := checker.Check(ctx)

	assert.True(t, result.IsUnavailable(3))
	assert.False(t, result.IsUnavailable(9))
	assert.Equal(t, 1, result.OthersFor(9))
	assert.Equal(t, result, checker.Latest())
}

func TestCheck_FailureDomainsAreIsolated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		availErr  error
		othersErr error
	}{
		{name: "availability fails", availErr: errors.New("boom")},
		{name: "others count fails", othersErr: errors.New("boom")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker, env := newTestChecker(t)
			env.login(1)
			ctx := context.Background()
			require.NoError(t, env.syncer.Add(ctx, gift(3, "vase", 2000)))

			env.remote.mu.Lock()
			env.remote.availResult = &cartapi.AvailabilityResult{UnavailableGiftIDs: []int64{3}}
			env.remote.othersResult = map[int64]int{3: 2}
			env.remote.availErr = tt.availErr
			env.remote.othersErr = tt.othersErr
			env.remote.mu.Unlock()

			result := checker.Check(ctx)

			if tt.availErr != nil {
				assert.Empty(t, result.Unavailable)
				assert.Equal(t, 2, result.OthersFor(3))
			} else {
				assert.True(t, result.IsUnavailable(3))
				assert.Empty(t, result.Others)
			}
		})
	}
}

func TestLatest_ReturnsCopies(t *testing.T) {
	t.Parallel()

	checker, env := newTestChecker(t)
	env.login(1)
	ctx := context.Background()
	require.NoError(t, env.syncer.Add(ctx, gift(3, "vase", 2000)))

	env.remote.availResult = &cartapi.AvailabilityResult{UnavailableGiftIDs: []int64{3}}
	env.remote.othersResult = map[int64]int{3: 2}
	checker.Check(ctx)

	got := checker.Latest()
	delete(got.Unavailable, 3)
	got.Others[3] = 99

	assert.True(t, checker.Latest().IsUnavailable(3))
	assert.Equal(t, 2, checker.Latest().OthersFor(3))
}

func TestCheck_EmptySnapshotResetsLatest(t *testing.T) {
	t.Parallel()

	checker, env := newTestChecker(t)
	env.login(1)
	ctx := context.Background()
	require.NoError(t, env.syncer.Add(ctx, gift(3, "vase", 2000)))

	env.remote.availResult = &cartapi.AvailabilityResult{UnavailableGiftIDs: []int64{3}}
	checker.Check(ctx)
	require.True(t, checker.Latest().IsUnavailable(3))

	env.syncer.OnIdentity(ctx, nil)
	calls := env.remote.availCalls

	result := checker.Check(ctx)

	assert.Empty(t, result.Unavailable)
	assert.Empty(t, checker.Latest().Unavailable)
	assert.Equal(t, calls, env.remote.availCalls)
}
