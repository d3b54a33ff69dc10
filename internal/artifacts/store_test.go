package artifacts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowgate/internal/ops"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testArtifact(id, instance, createdAt string) *ops.ManualArtifact {
	return &ops.ManualArtifact{
		ID:              id,
		Kind:            ops.KindRunScript,
		Instance:        instance,
		ScriptBody:      "gs.info('hi');",
		SuggestedTarget: "System Definition > Scripts - Background",
		Procedure:       []string{"Open the target module", "Paste the script", "Run it"},
		CreatedAt:       createdAt,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := testStore(t)
	want := testArtifact("art-1", "dev", "2026-03-14T12:00:00Z")

	require.NoError(t, s.Save(want))

	got, err := s.Get("art-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, got)
}

func TestGet_AbsentReturnsNil(t *testing.T) {
	got, err := testStore(t).Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_DuplicateIDRejected(t *testing.T) {
	s := testStore(t)
	a := testArtifact("art-1", "dev", "2026-03-14T12:00:00Z")
	require.NoError(t, s.Save(a))
	assert.Error(t, s.Save(a))
}

func TestList_NewestFirstWithInstanceFilter(t *testing.T) {
	s := testStore(t)
	for i := 1; i <= 3; i++ {
		inst := "dev"
		if i == 2 {
			inst = "prod"
		}
		require.NoError(t, s.Save(testArtifact(
			fmt.Sprintf("art-%d", i), inst,
			fmt.Sprintf("2026-03-14T12:00:0%dZ", i))))
	}

	all, err := s.List("", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "art-3", all[0].ID)
	assert.Equal(t, "art-1", all[2].ID)

	dev, err := s.List("dev", 10)
	require.NoError(t, err)
	require.Len(t, dev, 2)
	for _, a := range dev {
		assert.Equal(t, "dev", a.Instance)
	}

	capped, err := s.List("", 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Save(testArtifact("art-1", "dev", "2026-03-14T12:00:00Z")))
	require.NoError(t, s.Close())

	s2, err := New(Config{DataDir: dir})
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.Get("art-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestRenderYAML(t *testing.T) {
	out, err := RenderYAML(testArtifact("art-1", "dev", "2026-03-14T12:00:00Z"))
	require.NoError(t, err)
	assert.Contains(t, out, "id: art-1")
	assert.Contains(t, out, "kind: run_remote_script")
	assert.Contains(t, out, "suggested_target: System Definition > Scripts - Background")
	assert.Contains(t, out, "- Paste the script")
}
