package instance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore([]Instance{
		{Name: "a", BaseURL: "https://a.example.com", Username: "user-a", Password: "pw-a", Default: true},
		{Name: "b", BaseURL: "https://b.example.com", Username: "user-b", Password: "pw-b"},
	})
	require.NoError(t, err)
	return store
}

func TestResolve_DefaultWhenUnnamed(t *testing.T) {
	r := NewRouter(testStore(t))
	inst, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "a", inst.Name)
}

func TestResolve_UnknownIsSynchronousNotFound(t *testing.T) {
	r := NewRouter(testStore(t))
	_, err := r.Resolve("nonexistent")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf,
		"resolution fails before any network call is attempted")
}

func TestSelect_ChangesAmbientDefaultOnly(t *testing.T) {
	store := testStore(t)
	r := NewRouter(store)

	_, err := r.Select("b")
	require.NoError(t, err)

	assert.Equal(t, "b", r.Active().Name)
	assert.Equal(t, "a", store.Default().Name,
		"the load-time default is never mutated")
}

func TestSelect_Unknown(t *testing.T) {
	r := NewRouter(testStore(t))
	_, err := r.Select("nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "a", r.Active().Name, "a failed select leaves the selection unchanged")
}

func TestWithInstance_BindingIsolation(t *testing.T) {
	r := NewRouter(testStore(t))
	ctx := context.Background()

	// Spy on the credential observed inside each scoped invocation:
	// operating on B must never observe A's credential, and the ambient
	// default must be untouched afterward.
	var seen []string
	require.NoError(t, r.WithInstance(ctx, "a", func(_ context.Context, inst Instance) error {
		seen = append(seen, inst.Username)
		return nil
	}))
	require.NoError(t, r.WithInstance(ctx, "b", func(_ context.Context, inst Instance) error {
		seen = append(seen, inst.Username)
		return nil
	}))

	assert.Equal(t, []string{"user-a", "user-b"}, seen)
	assert.Equal(t, "a", r.Active().Name)
}

func TestWithInstance_ErrorPropagates(t *testing.T) {
	r := NewRouter(testStore(t))
	boom := errors.New("boom")

	err := r.WithInstance(context.Background(), "a", func(context.Context, Instance) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWithInstance_ConcurrentBindingsAllowed(t *testing.T) {
	r := NewRouter(testStore(t))

	// The protocol host dispatches tool calls on a worker pool, so a call
	// on B routinely arrives while a call on A sits in its settle wait.
	// Overlap is not nesting and must not be rejected.
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.WithInstance(context.Background(), "a", func(context.Context, Instance) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := r.WithInstance(context.Background(), "b", func(_ context.Context, inst Instance) error {
		assert.Equal(t, "user-b", inst.Username)
		return nil
	})
	assert.NoError(t, err)

	close(release)
	assert.NoError(t, <-done)
}

func TestWithInstance_NestedIsProgrammingError(t *testing.T) {
	r := NewRouter(testStore(t))

	err := r.WithInstance(context.Background(), "a", func(ctx context.Context, _ Instance) error {
		return r.WithInstance(ctx, "b", func(context.Context, Instance) error { return nil })
	})
	assert.ErrorIs(t, err, ErrNestedBinding)
}

func TestWithInstance_SequentialAfterNestedRejection(t *testing.T) {
	r := NewRouter(testStore(t))

	err := r.WithInstance(context.Background(), "a", func(ctx context.Context, _ Instance) error {
		return r.WithInstance(ctx, "b", func(context.Context, Instance) error { return nil })
	})
	require.ErrorIs(t, err, ErrNestedBinding)

	// A fresh top-level call is unaffected.
	require.NoError(t, r.WithInstance(context.Background(), "b",
		func(context.Context, Instance) error { return nil }))
}

func TestWithInstance_DifferentRoutersDoNotInterfere(t *testing.T) {
	store := testStore(t)
	r1 := NewRouter(store)
	r2 := NewRouter(store)

	err := r1.WithInstance(context.Background(), "a", func(ctx context.Context, _ Instance) error {
		return r2.WithInstance(ctx, "b", func(context.Context, Instance) error { return nil })
	})
	assert.NoError(t, err)
}

func TestWithInstance_UnknownInstance(t *testing.T) {
	r := NewRouter(testStore(t))
	called := false
	err := r.WithInstance(context.Background(), "nope", func(context.Context, Instance) error {
		called = true
		return nil
	})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.False(t, called)
}
