package reconciler

import (
	"testing"

	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidDefinitionsAreSkipped(t *testing.T) {
	tests := []struct {
		name    string
		def     document.ResourceDef
		message string
	}{
		{
			name: "group containing a clone",
			def: document.ResourceDef{ID: "grp", Kind: document.KindGroup, Children: []document.ResourceDef{
				{ID: "web-clone", Kind: document.KindClone, Children: []document.ResourceDef{primitive("web")}},
			}},
			message: "Failed unpacking group grp: group grp cannot contain a clone",
		},
		{
			name:    "clone without child",
			def:     document.ResourceDef{ID: "empty", Kind: document.KindClone},
			message: "Failed unpacking clone empty: clone empty must wrap exactly one resource",
		},
		{
			name:    "unknown template",
			def:     document.ResourceDef{ID: "db", Template: "missing"},
			message: "Failed unpacking primitive db: unknown template missing",
		},
		{
			name:    "unknown kind",
			def:     document.ResourceDef{ID: "odd", Kind: "widget"},
			message: `Failed unpacking widget odd: unknown resource kind "widget"`,
		},
		{
			name: "duplicate id inside a group",
			def: document.ResourceDef{ID: "grp", Kind: document.KindGroup, Children: []document.ResourceDef{
				primitive("a"), primitive("a"),
			}},
			message: "Failed unpacking group grp: duplicate resource id a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDoc(nil, "node1")
			doc.Config.Resources = []document.ResourceDef{tt.def, primitive("ok")}

			ws, _ := run(t, doc)

			assert.Contains(t, ws.ConfigErrors, tt.message)
			require.Len(t, ws.Resources, 1)
			assert.Equal(t, "ok", ws.Resources[0].ID)
		})
	}
}

func TestDuplicateIDAcrossDefinitions(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.Resources = []document.ResourceDef{
		primitive("db"),
		{ID: "grp", Kind: document.KindGroup, Children: []document.ResourceDef{primitive("db")}},
	}

	ws, _ := run(t, doc)

	assert.Contains(t, ws.ConfigErrors, "Failed unpacking group grp: duplicate resource id db")
	assert.Nil(t, ws.FindResource("grp"))
	assert.Equal(t, types.VariantPrimitive, mustResource(t, ws, "db").Variant)
}

func TestTemplatesFillMissingAgentFields(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.Templates = []document.TemplateDef{{ID: "pg", Class: "ocf", Provider: "heartbeat", Type: "pgsql"}}
	doc.Config.Resources = []document.ResourceDef{
		{ID: "db1", Template: "pg"},
		{ID: "db2", Template: "pg", Provider: "custom"},
	}

	ws, _ := run(t, doc)

	db1 := mustResource(t, ws, "db1")
	assert.Equal(t, "ocf", db1.Class)
	assert.Equal(t, "heartbeat", db1.Provider)
	assert.Equal(t, "pgsql", db1.Type)

	assert.Equal(t, "custom", mustResource(t, ws, "db2").Provider)
	assert.True(t, ws.Templates["pg"])
}

func TestResourcesAreOrderedByPriority(t *testing.T) {
	doc := newDoc(nil, "node1")
	low := primitive("low")
	high := primitive("high")
	high.Meta = map[string]string{"priority": "10"}
	doc.Config.Resources = []document.ResourceDef{low, primitive("mid"), high}

	ws, _ := run(t, doc)

	var ids []string
	for _, rsc := range ws.Resources {
		ids = append(ids, rsc.ID)
	}
	assert.Equal(t, []string{"high", "low", "mid"}, ids)
}

func TestMetaInheritance(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.ResourceDefaults = map[string]string{"is-managed": "false", "failure-timeout": "5m"}
	doc.Config.Resources = []document.ResourceDef{{
		ID:   "grp",
		Kind: document.KindGroup,
		Meta: map[string]string{"is-managed": "true"},
		Children: []document.ResourceDef{
			primitive("a"),
			func() document.ResourceDef {
				b := primitive("b")
				b.Meta = map[string]string{"is-managed": "false"}
				return b
			}(),
		},
	}}

	ws, _ := run(t, doc)

	a := mustResource(t, ws, "a")
	assert.True(t, a.Is(types.FlagManaged), "group meta overrides resource defaults")
	assert.Equal(t, "5m", a.Meta["failure-timeout"])
	assert.False(t, mustResource(t, ws, "b").Is(types.FlagManaged))
}

func TestCloneExpansion(t *testing.T) {
	doc := newDoc(nil, "node1", "node2", "node3")
	doc.Config.Resources = []document.ResourceDef{
		{ID: "web-clone", Kind: document.KindClone, Children: []document.ResourceDef{
			{ID: "web", Kind: document.KindGroup, Children: []document.ResourceDef{primitive("ip"), primitive("httpd")}},
		}},
		{ID: "limited", Kind: document.KindClone, Meta: map[string]string{"clone-max": "1"}, Children: []document.ResourceDef{primitive("one")}},
	}

	ws, _ := run(t, doc)

	clone := mustResource(t, ws, "web-clone")
	assert.Equal(t, 3, clone.CloneMax)
	assert.Equal(t, 1, clone.CloneNodeMax)
	require.Len(t, clone.Children, 3)
	assert.Equal(t, "web:2", clone.Children[2].ID)
	assert.Equal(t, "httpd:1", clone.Children[1].Children[1].ID)
	assert.False(t, mustResource(t, ws, "ip:0").Is(types.FlagUnique))
	assert.Equal(t, clone, ws.UberParent(mustResource(t, ws, "httpd:2")))

	assert.Len(t, mustResource(t, ws, "limited").Children, 1)
}

func TestContainerExpansion(t *testing.T) {
	doc := newDoc(nil, "node1")
	pgsql := primitive("pgsql")
	doc.Config.Resources = []document.ResourceDef{{
		ID:       "pg",
		Kind:     document.KindContainer,
		Meta:     map[string]string{"replicas": "2"},
		Children: []document.ResourceDef{pgsql},
	}}

	ws, _ := run(t, doc)

	pg := mustResource(t, ws, "pg")
	assert.Equal(t, types.VariantContainer, pg.Variant)
	inner := mustResource(t, ws, "pg-clone")
	assert.Equal(t, pg.ID, inner.ParentID)
	assert.Equal(t, 2, inner.CloneMax)
	assert.NotNil(t, ws.FindResource("pgsql:1"))
}

func TestFencingEnabledWithoutDevice(t *testing.T) {
	doc := newDoc(map[string]string{"stonith-enabled": "true"}, "node1")
	doc.Config.Resources = []document.ResourceDef{primitive("db")}

	ws, _ := run(t, doc)

	assert.False(t, ws.HasFencingResource)
	assert.Contains(t, ws.ConfigErrors, "Resource start-up disabled since no STONITH resources have been defined")
}

func TestTags(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.Tags = []document.TagDef{
		{ID: "databases", Refs: []string{"db1", "", "db2"}},
		{Refs: []string{"db3"}},
	}

	ws, _ := run(t, doc)

	assert.Equal(t, []string{"db1", "db2"}, ws.Tags["databases"])
	assert.Contains(t, ws.ConfigErrors, "Failed unpacking reference in tag databases: missing id")
	assert.Contains(t, ws.ConfigErrors, "Failed unpacking tag: missing id")
}
