// Package rename maps paths between the archive's real root folder and the
// name the user chose to display and export it under.
package rename

import (
	"strings"

	"dpack/internal/pathtree"
)

// RootRename substitutes OriginalPrefix with DisplayPrefix. Both carry a
// trailing slash.
type RootRename struct {
	OriginalPrefix string `json:"original_prefix"`
	DisplayPrefix  string `json:"display_prefix"`
}

// Rewriter applies a RootRename. The zero value and a nil *Rewriter are the
// identity.
type Rewriter struct {
	rename RootRename
	active bool
}

// Detect returns an active rewriter when roots is a single directory and
// displayName is a valid name different from it.
func Detect(roots []*pathtree.Node, displayName string) *Rewriter {
	displayName = strings.TrimSpace(displayName)
	root, ok := pathtree.SingleRootDir(roots)
	if !ok || !ValidName(displayName) || displayName == root.Name {
		return &Rewriter{}
	}
	return &Rewriter{
		rename: RootRename{
			OriginalPrefix: root.Path + "/",
			DisplayPrefix:  displayName + "/",
		},
		active: true,
	}
}

// ValidName reports whether name can stand in for a root folder.
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func (r *Rewriter) Active() bool {
	return r != nil && r.active
}

// Rename returns the substitution and whether it is active.
func (r *Rewriter) Rename() (RootRename, bool) {
	if !r.Active() {
		return RootRename{}, false
	}
	return r.rename, true
}

// ToDisplay maps an archive path to the path the user sees.
func (r *Rewriter) ToDisplay(p string) string {
	if !r.Active() {
		return p
	}
	return swap(p, r.rename.OriginalPrefix, r.rename.DisplayPrefix)
}

// ToOriginal maps a displayed path back to the archive path.
func (r *Rewriter) ToOriginal(p string) string {
	if !r.Active() {
		return p
	}
	return swap(p, r.rename.DisplayPrefix, r.rename.OriginalPrefix)
}

// swap replaces from with to at the start of p. The bare root folder, with
// or without a trailing slash, is mapped too.
func swap(p, from, to string) string {
	if strings.HasPrefix(p, from) {
		return to + p[len(from):]
	}
	if p == strings.TrimSuffix(from, "/") {
		return strings.TrimSuffix(to, "/")
	}
	return p
}

// DisplayTree returns a copy of roots with every path and the root name
// rewritten for display. roots itself is not modified.
func (r *Rewriter) DisplayTree(roots []*pathtree.Node) []*pathtree.Node {
	out := make([]*pathtree.Node, len(roots))
	for i, n := range roots {
		out[i] = n.Clone()
	}
	if !r.Active() {
		return out
	}

	pathtree.Walk(out, func(n *pathtree.Node, depth int) bool {
		n.Path = r.ToDisplay(n.Path)
		if depth == 0 {
			n.Name = strings.TrimSuffix(r.rename.DisplayPrefix, "/")
		}
		return true
	})
	return out
}
