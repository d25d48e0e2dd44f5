package canonicalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/gocd-pipelines/internal/gocd"
)

func parse(t *testing.T, doc string) *gocd.Element {
	t.Helper()
	root, err := gocd.ParseXML(strings.NewReader(doc))
	require.NoError(t, err)
	return root
}

func TestElement(t *testing.T) {
	t.Run("sorts environment variables by name", func(t *testing.T) {
		root := parse(t, `<environmentvariables>
			<variable name="ZEBRA" />
			<variable name="ALPHA" />
		</environmentvariables>`)

		canon := Element(root)
		assert.Equal(t, "ALPHA", canon.Children[0].Attr("name"))
		assert.Equal(t, "ZEBRA", canon.Children[1].Attr("name"))
	})

	t.Run("sorts pipeline groups by tag then group", func(t *testing.T) {
		root := parse(t, `<cruise>
			<pipelines group="zzz" />
			<pipelines group="aaa" />
			<agents />
		</cruise>`)

		canon := Element(root)
		assert.Equal(t, "agents", canon.Children[0].Tag)
		assert.Equal(t, "aaa", canon.Children[1].Attr("group"))
		assert.Equal(t, "zzz", canon.Children[2].Attr("group"))
	})

	t.Run("sorts admins by role text", func(t *testing.T) {
		root := parse(t, `<admins><role>ops</role><role>admins</role></admins>`)

		canon := Element(root)
		assert.Equal(t, "admins", canon.Children[0].Text)
		assert.Equal(t, "ops", canon.Children[1].Text)
	})

	t.Run("preserves stage and task order", func(t *testing.T) {
		root := parse(t, `<pipeline name="p">
			<stage name="second_runs_first" />
			<stage name="a_runs_second" />
		</pipeline>`)

		canon := Element(root)
		assert.Equal(t, "second_runs_first", canon.Children[0].Attr("name"))
		assert.Equal(t, "a_runs_second", canon.Children[1].Attr("name"))
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		root := parse(t, `<jobs><job name="z" /><job name="a" /></jobs>`)

		Element(root)
		assert.Equal(t, "z", root.Children[0].Attr("name"))
	})
}

func TestDiff(t *testing.T) {
	t.Run("identical trees diff empty", func(t *testing.T) {
		a := parse(t, `<cruise><pipelines group="a" /></cruise>`)
		b := parse(t, `<cruise><pipelines group="a" /></cruise>`)
		assert.Empty(t, Diff(a, b))
	})

	t.Run("reordered collections diff empty", func(t *testing.T) {
		a := parse(t, `<cruise><pipelines group="a" /><pipelines group="b" /></cruise>`)
		b := parse(t, `<cruise><pipelines group="b" /><pipelines group="a" /></cruise>`)
		assert.Empty(t, Diff(a, b))
	})

	t.Run("changes show as added and removed lines", func(t *testing.T) {
		a := parse(t, `<cruise><pipelines group="a" /></cruise>`)
		b := parse(t, `<cruise><pipelines group="b" /></cruise>`)

		diff := Diff(a, b)
		assert.Contains(t, diff, `- `)
		assert.Contains(t, diff, `+ `)
		assert.Contains(t, diff, `group="b"`)
	})
}
