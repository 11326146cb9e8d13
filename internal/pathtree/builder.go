package pathtree

import (
	"sort"
	"strings"
)

// Build reconstructs the directory tree of an archive from its flat entry
// listing and returns the top-level nodes.
//
// Directories never listed explicitly are implied by their descendants. A node
// first seen as a file is promoted to a directory as soon as any entry places
// something beneath it; the promotion is never undone.
func Build(entries []Entry) []*Node {
	nodes := make(map[string]*Node)
	order := make([]*Node, 0, len(entries))

	for _, entry := range entries {
		segments := Split(entry.Path)
		prefix := ""
		for i, segment := range segments {
			if i == 0 {
				prefix = segment
			} else {
				prefix += "/" + segment
			}

			isDir := i < len(segments)-1 || entry.IsDir

			node, ok := nodes[prefix]
			if !ok {
				node = &Node{Path: prefix, Name: segment}
				nodes[prefix] = node
				order = append(order, node)
			}
			if isDir {
				node.IsDir = true
			}
		}
	}

	roots := make([]*Node, 0)
	for _, node := range order {
		idx := strings.LastIndex(node.Path, "/")
		if idx == -1 {
			roots = append(roots, node)
			continue
		}
		parent := nodes[node.Path[:idx]]
		parent.Children = append(parent.Children, node)
	}

	sortNodes(roots)
	return roots
}

// Split breaks an archive path into its non-empty segments.
func Split(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// Normalize returns path without empty segments or a trailing slash.
func Normalize(path string) string {
	return strings.Join(Split(path), "/")
}

// sortNodes orders directories before files, then names case-insensitively.
func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
	for _, node := range nodes {
		sortNodes(node.Children)
	}
}
