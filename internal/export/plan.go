package export

import (
	"sort"

	"dpack/internal/pathtree"
	"dpack/internal/rename"
)

// PlanItem is one entry of the output archive.
type PlanItem struct {
	// Source is the original (pre-rename) path, used for lookups.
	Source string `json:"source"`
	// Target is the path written to the output archive.
	Target string `json:"target"`
	IsDir  bool   `json:"is_dir"`
	// Edited is true when the bytes come from the overlay.
	Edited bool `json:"edited"`
}

type Plan struct {
	Items []PlanItem `json:"items"`
}

func (p Plan) Len() int { return len(p.Items) }

// Targets lists output paths in plan order, directories with a trailing slash.
func (p Plan) Targets() []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Target
		if it.IsDir {
			out[i] += "/"
		}
	}
	return out
}

// BuildPlan merges the original entry listing with the overlay paths. Original
// entries come first in archive order, then overlay-only paths sorted. Each
// path appears once and is mapped through rw.
func BuildPlan(entries []pathtree.Entry, overlayPaths []string, rw *rename.Rewriter) Plan {
	edited := make(map[string]bool, len(overlayPaths))
	for _, p := range overlayPaths {
		edited[pathtree.Normalize(p)] = true
	}

	seen := make(map[string]bool, len(entries)+len(overlayPaths))
	items := make([]PlanItem, 0, len(entries)+len(overlayPaths))
	add := func(source string, isDir bool) {
		if source == "" || seen[source] {
			return
		}
		seen[source] = true
		items = append(items, PlanItem{
			Source: source,
			Target: rw.ToDisplay(source),
			IsDir:  isDir,
			Edited: !isDir && edited[source],
		})
	}

	for _, e := range entries {
		add(pathtree.Normalize(e.Path), e.IsDir)
	}

	extra := make([]string, 0, len(overlayPaths))
	for p := range edited {
		if !seen[p] {
			extra = append(extra, p)
		}
	}
	sort.Strings(extra)
	for _, p := range extra {
		add(p, false)
	}

	return Plan{Items: items}
}
