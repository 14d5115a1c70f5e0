package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tool(name, version string) Tool {
	return Tool{
		Name:    name,
		Version: version,
		Handler: HandlerSpec{Builtin: "echo"},
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(tool("search", "1.0.0")))
	require.NoError(t, r.Register(tool("search", "1.2.0")))

	got, err := r.Resolve("search", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)

	got, err = r.Resolve("search", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", got.Version)
}

func TestResolveLatestNumeric(t *testing.T) {
	r := New()

	// 1.10.0 > 1.9.0 numerically but not lexicographically; this is the
	// case a string sort gets wrong.
	require.NoError(t, r.Register(tool("search", "1.9.0")))
	require.NoError(t, r.Register(tool("search", "1.10.0")))
	require.NoError(t, r.Register(tool("search", "1.2.3")))

	got, err := r.Resolve("search", "")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", got.Version)

	latest, err := r.Latest("search")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", latest.Version)
}

func TestResolveTieBreakOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("conv", "2.0.9")))
	require.NoError(t, r.Register(tool("conv", "2.1.0")))
	require.NoError(t, r.Register(tool("conv", "1.99.99")))

	got, err := r.Latest("conv")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", got.Version, "major beats minor beats patch")
}

func TestPrereleaseSortsBelowRelease(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("search", "1.0.0-rc.1")))
	require.NoError(t, r.Register(tool("search", "1.0.0")))

	got, err := r.Latest("search")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)
}

func TestVersionNormalization(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("search", "2.0")))

	got, err := r.Resolve("search", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got.Version)

	// The shorthand resolves too.
	_, err = r.Resolve("search", "2.0")
	require.NoError(t, err)

	// And re-registering the long form is a duplicate.
	err = r.Register(tool("search", "2.0.0"))
	assert.ErrorIs(t, err, ErrDuplicateVersion)
}

func TestRegisterErrors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("search", "1.0.0")))

	err := r.Register(tool("search", "1.0.0"))
	assert.ErrorIs(t, err, ErrDuplicateVersion)

	err = r.Register(tool("search", "not-a-version"))
	assert.ErrorIs(t, err, ErrInvalidVersion)

	err = r.Register(Tool{Version: "1.0.0"})
	assert.Error(t, err)
}

func TestResolveErrors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("search", "1.0.0")))

	_, err := r.Resolve("nope", "")
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = r.Resolve("search", "9.9.9")
	assert.ErrorIs(t, err, ErrUnknownVersion)

	_, err = r.Resolve("search", "garbage")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestDeregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("search", "1.0.0")))
	require.NoError(t, r.Register(tool("search", "2.0.0")))

	require.NoError(t, r.Deregister("search", "2.0.0"))
	got, err := r.Latest("search")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)

	// Removing the last version removes the name.
	require.NoError(t, r.Deregister("search", "1.0.0"))
	_, err = r.Resolve("search", "")
	assert.ErrorIs(t, err, ErrUnknownTool)

	err = r.Deregister("search", "1.0.0")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestListOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("zeta", "1.0.0")))
	require.NoError(t, r.Register(tool("alpha", "2.0.0")))
	require.NoError(t, r.Register(tool("alpha", "1.10.0")))
	require.NoError(t, r.Register(tool("alpha", "1.2.0")))

	var got []string
	for tl := range r.List() {
		got = append(got, tl.Name+"@"+tl.Version)
	}
	want := []string{"alpha@1.2.0", "alpha@1.10.0", "alpha@2.0.0", "zeta@1.0.0"}
	assert.Equal(t, want, got)
}

func TestListRestartable(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("a", "1.0.0")))
	require.NoError(t, r.Register(tool("b", "1.0.0")))
	require.NoError(t, r.Register(tool("c", "1.0.0")))

	seq := r.List()

	// Stop early on the first pass.
	var first []string
	for tl := range seq {
		first = append(first, tl.Name)
		if len(first) == 1 {
			break
		}
	}
	assert.Equal(t, []string{"a"}, first)

	// A second range over the same sequence restarts from the beginning.
	var second []string
	for tl := range seq {
		second = append(second, tl.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, second)
}

func TestListSeesConcurrentRegistration(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("a", "1.0.0")))

	seq := r.List()

	var before []string
	for tl := range seq {
		before = append(before, tl.Name)
	}
	require.Equal(t, []string{"a"}, before)

	require.NoError(t, r.Register(tool("b", "1.0.0")))

	var after []string
	for tl := range seq {
		after = append(after, tl.Name)
	}
	assert.Equal(t, []string{"a", "b"}, after, "restarted iteration sees the new tool")
}

func TestNamesAndVersions(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("b", "1.0.0")))
	require.NoError(t, r.Register(tool("a", "1.10.0")))
	require.NoError(t, r.Register(tool("a", "1.9.0")))

	assert.Equal(t, []string{"a", "b"}, r.Names())

	versions, err := r.Versions("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.9.0", "1.10.0"}, versions)

	_, err = r.Versions("zzz")
	assert.ErrorIs(t, err, ErrUnknownTool)

	assert.Equal(t, 3, r.Len())
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tool("seed", "1.0.0")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			for range r.List() {
			}
			_, _ = r.Resolve("seed", "")
		}
	}()

	for i := 0; i < 200; i++ {
		_ = r.Register(Tool{
			Name:    "seed",
			Version: "1.0.1",
			Handler: HandlerSpec{Builtin: "echo"},
		})
		_ = r.Deregister("seed", "1.0.1")
	}
	<-done

	if !errors.Is(r.Register(tool("seed", "1.0.0")), ErrDuplicateVersion) {
		t.Error("seed tool should still be registered")
	}
}
