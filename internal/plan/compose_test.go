package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/buildplan/internal/profile"
)

func testBase() BuildPlan {
	return BuildPlan{
		SectionEntry: S("./src/index.js"),
		SectionOutput: Mapping{
			"path":     S("dist"),
			"filename": S("main.[contenthash].js"),
		},
		SectionResolveRules: Mapping{
			"extensions": List{S("*"), S(".js"), S(".jsx")},
			"alias":      Mapping{"#": S("./src")},
		},
		SectionTransformRules: List{
			Mapping{"extensions": List{S(".js"), S(".jsx")}, "loader": S("jsx")},
		},
		SectionOptimization: Mapping{
			"minimize":  S(true),
			"minimizer": List{S("cssMinimizer")},
		},
		SectionPluginSpecs: List{
			Mapping{"name": S("clean")},
			Mapping{"name": S("html"), "template": S("./src/index.html")},
		},
	}
}

func dev(vars map[string]string) profile.EnvironmentProfile {
	return profile.New(profile.Development, vars)
}

func TestCompose_identity(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())

	for _, id := range profile.DefaultRegistry().IDs() {
		t.Run(id, func(t *testing.T) {
			base := testBase()
			res, err := c.Compose(base, profile.New(id, nil), Override{})
			require.NoError(t, err)
			require.True(t, res.Plan.Equal(testBase()))
			require.Empty(t, res.Unresolved)
		})
	}
}

func TestCompose_identityWithPlaceholders(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())
	base := testBase()
	base[SectionOutput] = Mapping{
		"path":     S("${MY_APP_OUT:-dist}"),
		"filename": S("main.js"),
	}

	res, err := c.Compose(base, dev(map[string]string{"MY_APP_OUT": "build"}), Override{})
	require.NoError(t, err)

	// base placeholders are substituted, everything else is returned as is
	expected := testBase()
	expected[SectionOutput] = Mapping{"path": S("build"), "filename": S("main.js")}
	require.True(t, res.Plan.Equal(expected))
	require.False(t, res.Plan.Equal(base))

	res, err = c.Compose(base, dev(nil), Override{})
	require.NoError(t, err)
	path, _ := res.Plan.Mapping(SectionOutput).Str("path")
	require.Equal(t, "dist", path)

	// composing the substituted plan again is the identity
	again, err := c.Compose(res.Plan, dev(nil), Override{})
	require.NoError(t, err)
	require.True(t, again.Plan.Equal(res.Plan))
}

func TestCompose_scalarOverrideIdempotent(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())
	override := Override{
		SectionEntry: S("./src/other.js"),
		SectionMode:  S("production"),
	}

	once, err := c.Compose(testBase(), dev(nil), override)
	require.NoError(t, err)

	twice, err := c.Compose(once.Plan, dev(nil), override)
	require.NoError(t, err)

	require.True(t, once.Plan.Equal(twice.Plan))
	entry, _ := twice.Plan.Scalar(SectionEntry)
	require.Equal(t, "./src/other.js", entry.String())
}

func TestCompose_listAppendNoDedup(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())
	clean := Mapping{"name": S("clean")}

	res, err := c.Compose(testBase(), dev(nil), Override{SectionPluginSpecs: List{clean}})
	require.NoError(t, err)

	plugins := res.Plan.List(SectionPluginSpecs)
	require.Len(t, plugins, 3)

	count := 0
	for _, p := range plugins {
		if Equal(p, clean) {
			count++
		}
	}
	require.Equal(t, 2, count)
	require.True(t, Equal(clean, plugins[2]))
}

func TestCompose_mappingMerge(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())
	base := testBase()
	base[SectionDevServer] = Mapping{"port": S(3000), "host": S("localhost")}

	res, err := c.Compose(base, dev(nil), Override{SectionDevServer: Mapping{"port": S(7000)}})
	require.NoError(t, err)

	require.Equal(t, map[string]any{"port": 7000, "host": "localhost"}, res.Plan.Mapping(SectionDevServer).Native())
}

func TestCompose_nestedMerge(t *testing.T) {
	base := testBase()
	base[SectionDevServer] = Mapping{
		"proxy": Mapping{"target": S("http://a"), "changeOrigin": S(true)},
	}
	override := Override{
		SectionOutput:       Mapping{"filename": S("main.js")},
		SectionResolveRules: Mapping{"alias": Mapping{"@": S("./lib")}},
		SectionOptimization: Mapping{"minimizer": List{S("terser")}},
		SectionDevServer:    Mapping{"proxy": Mapping{"target": S("http://b")}},
	}

	tests := []struct {
		name      string
		opts      []Option
		alias     map[string]any
		minimizer []string
		proxy     map[string]any
	}{
		{
			name:      "shallow by default",
			alias:     map[string]any{"@": "./lib"},
			minimizer: []string{"terser"},
			proxy:     map[string]any{"target": "http://b"},
		},
		{
			name:      "deep merge",
			opts:      []Option{WithDeepMerge()},
			alias:     map[string]any{"#": "./src", "@": "./lib"},
			minimizer: []string{"cssMinimizer", "terser"},
			proxy:     map[string]any{"target": "http://b", "changeOrigin": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewComposer(profile.DefaultRegistry(), tt.opts...).Compose(base, dev(nil), override)
			require.NoError(t, err)

			out := res.Plan.Mapping(SectionOutput)
			filename, _ := out.Str("filename")
			path, _ := out.Str("path")
			require.Equal(t, "main.js", filename)
			require.Equal(t, "dist", path)

			alias, ok := res.Plan.Mapping(SectionResolveRules).Map("alias")
			require.True(t, ok)
			require.Equal(t, tt.alias, alias.Native())

			extensions := res.Plan.Mapping(SectionResolveRules).Strings("extensions")
			require.Equal(t, []string{"*", ".js", ".jsx"}, extensions)

			require.Equal(t, tt.minimizer, res.Plan.Mapping(SectionOptimization).Strings("minimizer"))

			proxy, ok := res.Plan.Mapping(SectionDevServer).Map("proxy")
			require.True(t, ok)
			require.Equal(t, tt.proxy, proxy.Native())
		})
	}
}

func TestCompose_overrideIntroducesSection(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())

	res, err := c.Compose(testBase(), dev(nil), Override{
		"performance": Mapping{"hints": S(false)},
		"custom":      List{S("a")},
	})
	require.NoError(t, err)

	for _, name := range testBase().Sections() {
		_, ok := res.Plan.Section(name)
		require.True(t, ok, name)
	}
	_, ok := res.Plan.Section("performance")
	require.True(t, ok)
	_, ok = res.Plan.Section("custom")
	require.True(t, ok)
}

func TestCompose_doesNotMutateInputs(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())
	base := testBase()
	override := Override{
		SectionPluginSpecs: List{Mapping{"name": S("hot")}},
		SectionOutput:      Mapping{"filename": S("${MY_APP_NAME}.js")},
	}

	_, err := c.Compose(base, dev(map[string]string{"MY_APP_NAME": "app"}), override)
	require.NoError(t, err)

	require.True(t, base.Equal(testBase()))
	require.Len(t, override[SectionPluginSpecs], 1)
	filename, _ := override[SectionOutput].(Mapping).Str("filename")
	require.Equal(t, "${MY_APP_NAME}.js", filename)
}

func TestCompose_unknownProfile(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())

	_, err := c.Compose(testBase(), profile.New("staging", nil), Override{})
	require.ErrorIs(t, err, ErrUnknownProfile)

	_, err = NewComposer(nil).Compose(testBase(), dev(nil), Override{})
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestCompose_unknownProfileFailsBeforeMerge(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())

	// an invalid base would otherwise report ErrMissingBaseSection
	_, err := c.Compose(BuildPlan{}, profile.New("staging", nil), Override{})
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestCompose_missingBaseSection(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())

	for _, name := range []string{SectionEntry, SectionOutput, SectionResolveRules, SectionTransformRules, SectionOptimization, SectionPluginSpecs} {
		t.Run(name, func(t *testing.T) {
			base := testBase()
			delete(base, name)

			_, err := c.Compose(base, dev(nil), Override{})
			require.ErrorIs(t, err, ErrMissingBaseSection)
			require.Contains(t, err.Error(), name)
		})
	}
}

func TestCompose_sectionKind(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())

	tests := []struct {
		name     string
		base     func() BuildPlan
		override Override
	}{
		{
			name: "base entry is a list",
			base: func() BuildPlan {
				b := testBase()
				b[SectionEntry] = List{S("a.js")}
				return b
			},
		},
		{
			name:     "override plugins is a mapping",
			base:     testBase,
			override: Override{SectionPluginSpecs: Mapping{"name": S("hot")}},
		},
		{
			name:     "override devServerOptions is a scalar",
			base:     testBase,
			override: Override{SectionDevServer: S("localhost:3000")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compose(tt.base(), dev(nil), tt.override)
			require.ErrorIs(t, err, ErrSectionKind)
		})
	}
}

func TestCompose_placeholders(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry())
	base := testBase()
	base[SectionDevServer] = Mapping{
		"host":  S("${DEV_SERVER_HOST:-localhost}"),
		"port":  S("${DEV_SERVER_PORT}"),
		"proxy": Mapping{"target": S("http://${MY_APP_MISSING}/api")},
		"open":  S("${MY_APP_MISSING}"),
	}

	res, err := c.Compose(base, dev(map[string]string{"DEV_SERVER_PORT": "7000"}), Override{})
	require.NoError(t, err)

	ds := res.Plan.Mapping(SectionDevServer)
	host, _ := ds.Str("host")
	require.Equal(t, "localhost", host)

	port, ok := ds.Int("port")
	require.True(t, ok)
	require.Equal(t, 7000, port)

	open, _ := ds.Str("open")
	require.Equal(t, "", open)

	proxy, _ := ds.Map("proxy")
	target, _ := proxy.Str("target")
	require.Equal(t, "http:///api", target)

	require.Equal(t, []string{"MY_APP_MISSING"}, res.Unresolved)
}

func TestCompose_strictPlaceholders(t *testing.T) {
	c := NewComposer(profile.DefaultRegistry(), WithStrictPlaceholders())

	_, err := c.Compose(testBase(), dev(nil), Override{SectionEntry: S("${MY_APP_MISSING}")})
	require.ErrorIs(t, err, ErrUnresolvedPlaceholder)

	res, err := c.Compose(testBase(), dev(nil), Override{SectionEntry: S("${MY_APP_MISSING:-./src/index.js}")})
	require.NoError(t, err)
	require.Empty(t, res.Unresolved)
}

func TestCompose_customSchema(t *testing.T) {
	c := NewComposer(profile.NewRegistry("php"), WithSchema(Schema{
		SectionEntry: {Kind: KindScalar, Required: true},
	}))

	res, err := c.Compose(BuildPlan{SectionEntry: S("./src/index.js")}, profile.New("php", nil), Override{
		SectionPluginSpecs: List{Mapping{"name": S("html"), "filename": S("index.php")}},
	})
	require.NoError(t, err)
	require.Len(t, res.Plan.List(SectionPluginSpecs), 1)
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		vars       map[string]string
		expected   string
		unresolved []string
	}{
		{
			name:     "no placeholders",
			input:    "main.[contenthash].js",
			expected: "main.[contenthash].js",
		},
		{
			name:     "resolved",
			input:    "http://${HOST}:${PORT}",
			vars:     map[string]string{"HOST": "localhost", "PORT": "8080"},
			expected: "http://localhost:8080",
		},
		{
			name:       "unresolved becomes empty",
			input:      "${MY_APP_MISSING}",
			expected:   "",
			unresolved: []string{"MY_APP_MISSING"},
		},
		{
			name:     "default used",
			input:    "${HOST:-localhost}",
			expected: "localhost",
		},
		{
			name:     "empty default",
			input:    "a${HOST:-}b",
			expected: "ab",
		},
		{
			name:     "empty value takes default",
			input:    "${HOST:-localhost}",
			vars:     map[string]string{"HOST": ""},
			expected: "localhost",
		},
		{
			name:     "empty value without default",
			input:    "[${HOST}]",
			vars:     map[string]string{"HOST": ""},
			expected: "[]",
		},
		{
			name:     "not a placeholder",
			input:    "$HOME ${1BAD}",
			expected: "$HOME ${1BAD}",
		},
		{
			name:       "duplicates reported once",
			input:      "${B}${A}${B}",
			expected:   "",
			unresolved: []string{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, unresolved := Expand(tt.input, tt.vars)
			require.Equal(t, tt.expected, out)
			require.Equal(t, tt.unresolved, unresolved)
		})
	}
}
