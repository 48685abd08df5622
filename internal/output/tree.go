package output

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
)

type treeNode struct {
	name     string
	failures int
	children []*treeNode
}

func (n *treeNode) findOrCreate(name string) *treeNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	child := &treeNode{name: name}
	n.children = append(n.children, child)
	return child
}

// PrintTree renders the paths of failing pages as a tree, with the number
// of failures recorded against each page, e.g.
//
//	└── docs
//	    └── intro.html (2)
func PrintTree(w io.Writer, failedURLs []string) {
	if len(failedURLs) == 0 {
		return
	}

	counts := make(map[string]int, len(failedURLs))
	for _, raw := range failedURLs {
		counts[treePath(raw)]++
	}
	paths := make([]string, 0, len(counts))
	for p := range counts {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	root := &treeNode{name: "/"}
	for _, p := range paths {
		node := root
		for _, part := range strings.Split(p, "/") {
			node = node.findOrCreate(part)
		}
		node.failures += counts[p]
	}

	fmt.Fprintf(w, "\n  Pages with failures:\n")
	printChildren(w, root, "  ")
}

// treePath is the URL path without its leading slash; the site root and
// query strings get names of their own so they show up as nodes.
func treePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		p = "(index)"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

func printChildren(w io.Writer, node *treeNode, prefix string) {
	for i, child := range node.children {
		isLast := i == len(node.children)-1
		connector := "├── "
		if isLast {
			connector = "└── "
		}
		label := child.name
		if child.failures > 0 {
			label = fmt.Sprintf("%s (%d)", child.name, child.failures)
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, connector, label)
		nextPrefix := prefix + "│   "
		if isLast {
			nextPrefix = prefix + "    "
		}
		printChildren(w, child, nextPrefix)
	}
}
