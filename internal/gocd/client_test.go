package gocd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `<?xml version="1.0" encoding="utf-8"?>
<cruise schemaVersion="72">
  <server artifactsdir="artifacts" />
  <pipelines group="existing">
    <pipeline name="keep-me">
      <materials>
        <git url="https://example.com/repo" />
      </materials>
      <stage name="noop">
        <jobs>
          <job name="noop" />
        </jobs>
      </stage>
    </pipeline>
  </pipelines>
</cruise>`

type fakeServer struct {
	version string
	config  string

	posts []struct {
		xml string
		md5 string
	}
	postStatus int
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/go/admin/restful/configuration/file/GET/xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CRUISE-CONFIG-MD5", s.version)
		_, _ = w.Write([]byte(s.config))
	})
	mux.HandleFunc("/go/admin/restful/configuration/file/POST/xml", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.posts = append(s.posts, struct {
			xml string
			md5 string
		}{r.PostFormValue("xmlFile"), r.PostFormValue("md5")})
		if s.postStatus != 0 {
			w.WriteHeader(s.postStatus)
		}
	})
	return mux
}

func newTestClient(t *testing.T, server *fakeServer) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(server.handler())
	t.Cleanup(ts.Close)

	logger := zerolog.Nop()
	return NewClient(ts.URL, &logger, WithBasicAuth("admin", "secret")), ts
}

func TestClient_FetchConfig(t *testing.T) {
	t.Run("returns document and version", func(t *testing.T) {
		server := &fakeServer{version: "abc123", config: testConfig}
		client, _ := newTestClient(t, server)

		config, err := client.FetchConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "abc123", config.Version)
		assert.Equal(t, "cruise", config.Root.Tag)
		assert.Equal(t, "existing", config.Root.Child("pipelines").Attr("group"))
	})

	t.Run("missing version header is an error", func(t *testing.T) {
		server := &fakeServer{version: "", config: testConfig}
		client, _ := newTestClient(t, server)

		_, err := client.FetchConfig(context.Background())
		assert.ErrorIs(t, err, ErrMissingVersion)
	})

	t.Run("non-cruise document is an error", func(t *testing.T) {
		server := &fakeServer{version: "abc", config: "<html />"}
		client, _ := newTestClient(t, server)

		_, err := client.FetchConfig(context.Background())
		assert.ErrorIs(t, err, ErrMissingCruise)
	})
}

func TestClient_PostConfig(t *testing.T) {
	t.Run("posts document with fetched version", func(t *testing.T) {
		server := &fakeServer{version: "v1", config: testConfig}
		client, _ := newTestClient(t, server)

		config, err := client.FetchConfig(context.Background())
		require.NoError(t, err)

		require.NoError(t, client.PostConfig(context.Background(), config))
		require.Len(t, server.posts, 1)
		assert.Equal(t, "v1", server.posts[0].md5)
		assert.Contains(t, server.posts[0].xml, `group="existing"`)
	})

	t.Run("conflict maps to ErrConfigConflict", func(t *testing.T) {
		server := &fakeServer{version: "v1", config: testConfig, postStatus: http.StatusConflict}
		client, _ := newTestClient(t, server)

		config, err := client.FetchConfig(context.Background())
		require.NoError(t, err)

		err = client.PostConfig(context.Background(), config)
		assert.ErrorIs(t, err, ErrConfigConflict)
	})
}

func TestConfigurator_Save(t *testing.T) {
	newConfigurator := func(t *testing.T, server *fakeServer, opts ...ConfiguratorOption) *Configurator {
		client, _ := newTestClient(t, server)
		logger := zerolog.Nop()
		return NewConfigurator(client, &logger, opts...)
	}

	ensureGroup := func(c *Configurator, name string) {
		group := c.EnsurePipelineGroup(name)
		pipeline := group.EnsureReplacementOfPipeline(name + "-pipeline")
		pipeline.EnsureMaterial(GitMaterial{URL: "https://example.com/app", Polling: true})
		pipeline.EnsureStage("build").EnsureJob("build_job").AddTask(ExecTask{
			Command: []string{"/bin/echo", "hello"},
		})
	}

	t.Run("adds managed group and preserves existing ones", func(t *testing.T) {
		server := &fakeServer{version: "v1", config: testConfig}
		configurator := newConfigurator(t, server)
		ensureGroup(configurator, "tools")

		require.NoError(t, configurator.Save(context.Background(), SaveOptions{}))
		require.Len(t, server.posts, 1)

		assert.Contains(t, server.posts[0].xml, `group="existing"`)
		assert.Contains(t, server.posts[0].xml, `group="tools"`)
	})

	t.Run("replaces managed group in place", func(t *testing.T) {
		server := &fakeServer{version: "v1", config: testConfig}
		configurator := newConfigurator(t, server)
		ensureGroup(configurator, "existing")

		require.NoError(t, configurator.Save(context.Background(), SaveOptions{}))
		require.Len(t, server.posts, 1)

		assert.NotContains(t, server.posts[0].xml, "keep-me")
		assert.Contains(t, server.posts[0].xml, "existing-pipeline")
	})

	t.Run("removes groups marked for removal", func(t *testing.T) {
		server := &fakeServer{version: "v1", config: testConfig}
		configurator := newConfigurator(t, server)
		configurator.EnsureRemovalOfPipelineGroup("existing")

		require.NoError(t, configurator.Save(context.Background(), SaveOptions{}))
		require.Len(t, server.posts, 1)
		assert.NotContains(t, server.posts[0].xml, `group="existing"`)
	})

	t.Run("dry run posts nothing", func(t *testing.T) {
		server := &fakeServer{version: "v1", config: testConfig}
		diffed := false
		configurator := newConfigurator(t, server, WithDiff(func(before, after *Element) string {
			diffed = true
			return ""
		}))
		ensureGroup(configurator, "tools")

		require.NoError(t, configurator.Save(context.Background(), SaveOptions{DryRun: true}))
		assert.True(t, diffed)
		assert.Empty(t, server.posts)
	})

	t.Run("dry run without a diff renderer is an error", func(t *testing.T) {
		server := &fakeServer{version: "v1", config: testConfig}
		configurator := newConfigurator(t, server)

		err := configurator.Save(context.Background(), SaveOptions{DryRun: true})
		assert.Error(t, err)
	})

	t.Run("writes snapshots when requested", func(t *testing.T) {
		server := &fakeServer{version: "v1", config: testConfig}
		configurator := newConfigurator(t, server)
		ensureGroup(configurator, "tools")

		dir := t.TempDir()
		require.NoError(t, configurator.Save(context.Background(), SaveOptions{SnapshotDir: dir}))

		assert.FileExists(t, dir+"/config-before.xml")
		assert.FileExists(t, dir+"/config-after.xml")
	})
}
