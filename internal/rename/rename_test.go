package rename

import (
	"testing"

	"dpack/internal/pathtree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packTree() []*pathtree.Node {
	return pathtree.Build([]pathtree.Entry{
		{Path: "Pack/", IsDir: true},
		{Path: "Pack/data/teams.csv"},
		{Path: "Pack/logos/", IsDir: true},
	})
}

func TestDetect(t *testing.T) {
	multi := pathtree.Build([]pathtree.Entry{{Path: "a.txt"}, {Path: "b/", IsDir: true}})
	file := pathtree.Build([]pathtree.Entry{{Path: "readme.txt"}})

	tests := []struct {
		name   string
		roots  []*pathtree.Node
		input  string
		active bool
	}{
		{"SingleRootNewName", packTree(), "MyPack", true},
		{"TrimsSpace", packTree(), "  MyPack ", true},
		{"SameName", packTree(), "Pack", false},
		{"EmptyName", packTree(), "", false},
		{"NameWithSlash", packTree(), "My/Pack", false},
		{"DotDot", packTree(), "..", false},
		{"MultipleRoots", multi, "MyPack", false},
		{"SingleFileRoot", file, "MyPack", false},
		{"NoRoots", nil, "MyPack", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Detect(tt.roots, tt.input)
			assert.Equal(t, tt.active, r.Active())
		})
	}
}

func TestRewriter_RoundTrip(t *testing.T) {
	r := Detect(packTree(), "MyPack")
	rn, ok := r.Rename()
	require.True(t, ok)
	assert.Equal(t, RootRename{OriginalPrefix: "Pack/", DisplayPrefix: "MyPack/"}, rn)

	assert.Equal(t, "MyPack/data/teams.csv", r.ToDisplay("Pack/data/teams.csv"))
	assert.Equal(t, "Pack/data/teams.csv", r.ToOriginal("MyPack/data/teams.csv"))
	assert.Equal(t, "MyPack", r.ToDisplay("Pack"))
	assert.Equal(t, "MyPack/", r.ToDisplay("Pack/"))
	assert.Equal(t, "Pack", r.ToOriginal("MyPack"))

	// only the leading segment is rewritten
	assert.Equal(t, "Package/x", r.ToDisplay("Package/x"))
	assert.Equal(t, "Other/Pack/x", r.ToDisplay("Other/Pack/x"))
}

func TestRewriter_Inactive(t *testing.T) {
	var nilRewriter *Rewriter
	assert.False(t, nilRewriter.Active())
	assert.Equal(t, "Pack/a", nilRewriter.ToDisplay("Pack/a"))

	r := Detect(packTree(), "")
	assert.Equal(t, "Pack/a", r.ToOriginal("Pack/a"))
	_, ok := r.Rename()
	assert.False(t, ok)
}

func TestDisplayTree(t *testing.T) {
	roots := packTree()
	r := Detect(roots, "MyPack")

	display := r.DisplayTree(roots)
	require.Len(t, display, 1)
	assert.Equal(t, "MyPack", display[0].Name)
	assert.Equal(t, "MyPack", display[0].Path)

	node := pathtree.Find(display, "MyPack/data/teams.csv")
	require.NotNil(t, node)
	assert.Equal(t, "teams.csv", node.Name)
	assert.Equal(t, "Pack/data/teams.csv", r.ToOriginal(node.Path))

	// source tree untouched
	assert.Equal(t, "Pack", roots[0].Name)
	assert.NotNil(t, pathtree.Find(roots, "Pack/data/teams.csv"))
}
