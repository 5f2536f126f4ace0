package docstore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `{"name": "vm1", "pciid": "0000:07:00.0", "vfid": 1, "vlans": [10]}`

func newStore(t *testing.T, keep bool) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := New(fs, "/var/lib/vfd/config", keep)
	require.NoError(t, s.Init())
	return s, fs
}

func exists(t *testing.T, fs afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)
	return ok
}

func TestResolve(t *testing.T) {
	s, _ := newStore(t, false)
	assert.Equal(t, "/var/lib/vfd/config/vm1.json", s.ResolveAdd("vm1.json"))
	assert.Equal(t, "/var/lib/vfd/config_live/vm1.json", s.ResolveDelete("vm1.json"))
	assert.Equal(t, "/tmp/vm1.json", s.ResolveAdd("/tmp/vm1.json"))
	assert.Equal(t, "/tmp/vm1.json", s.ResolveDelete("/tmp/vm1.json"))
}

func TestLoad(t *testing.T) {
	s, fs := newStore(t, false)
	path := s.ResolveAdd("vm1.json")
	require.NoError(t, afero.WriteFile(fs, path, []byte(doc), 0o644))

	d, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "vm1", d.Name)
	assert.Equal(t, 1, d.VFID)

	_, err = s.Load(s.ResolveAdd("missing.json"))
	assert.ErrorContains(t, err, "unable to read config file")

	require.NoError(t, afero.WriteFile(fs, path, []byte("{"), 0o644))
	_, err = s.Load(path)
	assert.ErrorContains(t, err, "unable to read or parse config file")
}

func TestCommitMovesToLive(t *testing.T) {
	s, fs := newStore(t, false)
	path := s.ResolveAdd("vm1.json")
	require.NoError(t, afero.WriteFile(fs, path, []byte(doc), 0o644))

	live, err := s.Commit(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vfd/config_live/vm1.json", live)
	assert.False(t, exists(t, fs, path))
	assert.True(t, exists(t, fs, live))

	again, err := s.Commit(live)
	require.NoError(t, err)
	assert.Equal(t, live, again, "live documents stay put")

	docs, err := s.LiveDocuments()
	require.NoError(t, err)
	assert.Equal(t, []string{live}, docs)
}

func TestReject(t *testing.T) {
	s, fs := newStore(t, false)
	path := s.ResolveAdd("vm1.json")
	require.NoError(t, afero.WriteFile(fs, path, []byte(doc), 0o644))

	target := s.Reject(path)
	assert.Equal(t, "/var/lib/vfd/config/vm1.json.error", target)
	assert.True(t, exists(t, fs, target))
	assert.False(t, exists(t, fs, path))
}

func TestRemove(t *testing.T) {
	t.Run("unlink", func(t *testing.T) {
		s, fs := newStore(t, false)
		live := s.ResolveDelete("vm1.json")
		require.NoError(t, afero.WriteFile(fs, live, []byte(doc), 0o644))

		require.NoError(t, s.Remove(live))
		assert.False(t, exists(t, fs, live))
		assert.Error(t, s.Remove(live), "second remove has nothing to unlink")
	})

	t.Run("keep", func(t *testing.T) {
		s, fs := newStore(t, true)
		live := s.ResolveDelete("vm1.json")
		require.NoError(t, afero.WriteFile(fs, live, []byte(doc), 0o644))

		require.NoError(t, s.Remove(live))
		assert.False(t, exists(t, fs, live))
		assert.True(t, exists(t, fs, "/var/lib/vfd/config/vm1.json-"))
	})
}

func TestLiveDocumentsIgnoresOtherFiles(t *testing.T) {
	s, fs := newStore(t, false)
	for _, n := range []string{"b.json", "a.json", "c.json-", "d.txt"} {
		require.NoError(t, afero.WriteFile(fs, s.ResolveDelete(n), []byte(doc), 0o644))
	}
	docs, err := s.LiveDocuments()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/var/lib/vfd/config_live/a.json",
		"/var/lib/vfd/config_live/b.json",
	}, docs)
}

func TestPark(t *testing.T) {
	s, fs := newStore(t, false)
	live := s.ResolveDelete("vm1.json")
	require.NoError(t, afero.WriteFile(fs, live, []byte(doc), 0o644))

	assert.Equal(t, "/var/lib/vfd/config/vm1.json-", s.Park(live))
	assert.False(t, exists(t, fs, live))

	docs, err := s.LiveDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, s.Park(live), "nothing left to park")
}
