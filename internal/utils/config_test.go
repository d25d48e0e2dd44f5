package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepMerge(t *testing.T) {
	t.Run("merges disjoint keys", func(t *testing.T) {
		merged, err := DeepMerge(
			Variables{"a": "1"},
			Variables{"b": "2"},
		)
		require.NoError(t, err)
		assert.Equal(t, Variables{"a": "1", "b": "2"}, merged)
	})

	t.Run("merges nested maps recursively", func(t *testing.T) {
		merged, err := DeepMerge(
			Variables{"outer": map[string]interface{}{"a": "1"}},
			Variables{"outer": map[string]interface{}{"b": "2"}},
		)
		require.NoError(t, err)

		outer, err := merged.Map("outer")
		require.NoError(t, err)
		assert.Equal(t, Variables{"a": "1", "b": "2"}, outer)
	})

	t.Run("identical leaves are not a conflict", func(t *testing.T) {
		_, err := DeepMerge(
			Variables{"a": "same"},
			Variables{"a": "same"},
		)
		assert.NoError(t, err)
	})

	t.Run("differing leaves conflict with key path", func(t *testing.T) {
		_, err := DeepMerge(
			Variables{"outer": map[string]interface{}{"key": "1"}},
			Variables{"outer": map[string]interface{}{"key": "2"}},
		)
		require.ErrorIs(t, err, ErrMergeConflict)
		assert.Contains(t, err.Error(), "outer.key")
	})
}

func TestParseOverrides(t *testing.T) {
	t.Run("parses KEY=VALUE pairs", func(t *testing.T) {
		vars, err := ParseOverrides([]string{"a=1", "b=two=parts"})
		require.NoError(t, err)
		assert.Equal(t, Variables{"a": "1", "b": "two=parts"}, vars)
	})

	t.Run("rejects malformed pairs", func(t *testing.T) {
		_, err := ParseOverrides([]string{"novalue"})
		assert.Error(t, err)

		_, err = ParseOverrides([]string{"=empty"})
		assert.Error(t, err)
	})
}

func TestMergeFilesAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.yml")
	require.NoError(t, os.WriteFile(path, []byte("asgard_token: abc\nnested:\n  key: value\n"), 0o644))

	vars, err := MergeFilesAndOverrides([]string{path}, []string{"extra=1"})
	require.NoError(t, err)

	token, err := vars.String("asgard_token")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, "1", vars.StringOr("extra", ""))
}

func TestConfig_ForEDP(t *testing.T) {
	config := NewConfig(Variables{"global_key": "g", "shared": "base"})
	require.NoError(t, config.AddEnvironment("stage", Variables{"env_key": "stage-value"}))
	require.NoError(t, config.AddEnvDeployment("stage-edx", Variables{"edp_key": "edp-value"}))

	edp := EDP{Environment: "stage", Deployment: "edx", Play: "ecommerce"}
	vars, err := config.ForEDP(edp)
	require.NoError(t, err)

	assert.Equal(t, "g", vars.StringOr("global_key", ""))
	assert.Equal(t, "stage-value", vars.StringOr("env_key", ""))
	assert.Equal(t, "edp-value", vars.StringOr("edp_key", ""))

	// Overlays from other scopes stay invisible.
	other := EDP{Environment: "prod", Deployment: "edx", Play: "ecommerce"}
	vars, err = config.ForEDP(other)
	require.NoError(t, err)
	assert.Equal(t, "", vars.StringOr("env_key", ""))
}

func TestVariables_Getters(t *testing.T) {
	vars := Variables{
		"str":  "value",
		"num":  42,
		"flag": true,
		"envs": map[string]interface{}{"A": "1", "B": 2},
	}

	t.Run("String", func(t *testing.T) {
		s, err := vars.String("str")
		require.NoError(t, err)
		assert.Equal(t, "value", s)

		s, err = vars.String("num")
		require.NoError(t, err)
		assert.Equal(t, "42", s)

		_, err = vars.String("missing")
		assert.Error(t, err)
	})

	t.Run("Bool", func(t *testing.T) {
		assert.True(t, vars.Bool("flag"))
		assert.False(t, vars.Bool("missing"))
		assert.False(t, vars.Bool("str"))
	})

	t.Run("StringMap", func(t *testing.T) {
		flat, err := vars.StringMap("envs")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"A": "1", "B": "2"}, flat)

		flat, err = vars.StringMap("missing")
		require.NoError(t, err)
		assert.Empty(t, flat)

		_, err = vars.StringMap("str")
		assert.Error(t, err)
	})

	t.Run("Slice", func(t *testing.T) {
		vars := Variables{
			"materials": []interface{}{
				map[string]interface{}{"url": "https://github.com/edx/tubular"},
				map[string]interface{}{"url": "https://github.com/edx/configuration"},
			},
			"str": "value",
		}

		sets, err := vars.Slice("materials")
		require.NoError(t, err)
		require.Len(t, sets, 2)
		url, err := sets[1].String("url")
		require.NoError(t, err)
		assert.Equal(t, "https://github.com/edx/configuration", url)

		sets, err = vars.Slice("missing")
		require.NoError(t, err)
		assert.Empty(t, sets)

		_, err = vars.Slice("str")
		assert.Error(t, err)

		vars["bad"] = []interface{}{"not-a-map"}
		_, err = vars.Slice("bad")
		assert.Error(t, err)
	})
}
