package pathtree

import "strings"

// Find resolves a path in the forest. Trailing slashes are ignored.
func Find(roots []*Node, path string) *Node {
	path = Normalize(path)
	if path == "" {
		return nil
	}
	nodes := roots
	var current *Node
	prefix := ""
	for i, segment := range Split(path) {
		if i == 0 {
			prefix = segment
		} else {
			prefix += "/" + segment
		}
		current = nil
		for _, n := range nodes {
			if n.Path == prefix {
				current = n
				break
			}
		}
		if current == nil {
			return nil
		}
		nodes = current.Children
	}
	return current
}

// Walk visits every node depth-first in sorted order. Returning false from fn
// skips the node's children.
func Walk(roots []*Node, fn func(n *Node, depth int) bool) {
	var walk func(nodes []*Node, depth int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(roots, 0)
}

// Count counts all nodes in the forest.
func Count(roots []*Node) int {
	count := 0
	Walk(roots, func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// Flatten returns all nodes keyed by path.
func Flatten(roots []*Node) map[string]*Node {
	result := make(map[string]*Node)
	Walk(roots, func(n *Node, _ int) bool {
		result[n.Path] = n
		return true
	})
	return result
}

// SingleRootDir returns the only top-level node when the forest consists of
// exactly one directory.
func SingleRootDir(roots []*Node) (*Node, bool) {
	if len(roots) != 1 || !roots[0].IsDir {
		return nil, false
	}
	return roots[0], true
}

// Files returns the paths of all file nodes under dir, in tree order.
func Files(dir *Node) []string {
	if dir == nil {
		return nil
	}
	var files []string
	Walk(dir.Children, func(n *Node, _ int) bool {
		if !n.IsDir {
			files = append(files, n.Path)
		}
		return true
	})
	return files
}

// ParentPath returns the path of the node's parent, or "" for a root.
func ParentPath(path string) string {
	path = Normalize(path)
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return ""
	}
	return path[:idx]
}
