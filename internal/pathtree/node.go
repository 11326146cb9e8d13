package pathtree

// Node is a directory or file in the tree built from archive entries.
type Node struct {
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	IsDir    bool    `json:"is_dir"`
	Children []*Node `json:"children,omitempty"`
}

// Entry is one record of an archive listing.
type Entry struct {
	Path  string
	IsDir bool
}

// ArchivePath returns the path as stored in an archive: directories carry a
// trailing slash.
func (n *Node) ArchivePath() string {
	if n.IsDir {
		return n.Path + "/"
	}
	return n.Path
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Path: n.Path, Name: n.Name, IsDir: n.IsDir}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}
