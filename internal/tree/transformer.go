// Package tree turns the remote's flat recursive listing into a snapshot tree.
package tree

import (
	"strings"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
)

// Transformer converts flat tree listings into hierarchical trees.
// It holds no mutable state and is safe for concurrent use.
type Transformer struct {
	policy IgnorePolicy
}

// NewTransformer creates a Transformer that drops entries matched by policy.
func NewTransformer(policy IgnorePolicy) *Transformer {
	return &Transformer{policy: policy}
}

// Transform builds the root directory node for entries.
// Children keep the order in which their name first appears; a repeated path
// replaces the earlier node in place. Submodule entries are skipped.
func (t *Transformer) Transform(entries []model.TreeEntry) (*model.TreeNode, error) {
	b := newBuilder()
	for _, e := range entries {
		if e.Type == model.EntryCommit {
			continue
		}
		if e.Type != model.EntryBlob && e.Type != model.EntryTree {
			return nil, &custom_errors.TransformError{Path: e.Path, Reason: "unknown entry type " + e.Type}
		}
		if err := validatePath(e.Path); err != nil {
			return nil, err
		}
		if t.policy.Ignored(e.Path) {
			continue
		}
		if err := b.insert(e); err != nil {
			return nil, err
		}
	}
	return b.root, nil
}

func validatePath(path string) error {
	if path == "" {
		return &custom_errors.TransformError{Path: path, Reason: "empty path"}
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return &custom_errors.TransformError{Path: path, Reason: "invalid path segment"}
		}
	}
	return nil
}

// builder keeps a name->position index per directory so children stay unique.
type builder struct {
	root  *model.TreeNode
	index map[*model.TreeNode]map[string]int
}

func newBuilder() *builder {
	root := &model.TreeNode{Kind: model.KindDirectory, Children: []*model.TreeNode{}}
	return &builder{
		root:  root,
		index: map[*model.TreeNode]map[string]int{root: {}},
	}
}

func (b *builder) insert(e model.TreeEntry) error {
	segments := strings.Split(e.Path, "/")
	parent := b.root
	for _, seg := range segments[:len(segments)-1] {
		child := b.child(parent, seg)
		switch {
		case child == nil:
			child = b.add(parent, newDirectory(parent, seg))
		case !child.IsDir():
			return &custom_errors.TransformError{Path: e.Path, Reason: "parent " + child.Path + " is a file"}
		}
		parent = child
	}

	name := segments[len(segments)-1]
	existing := b.child(parent, name)
	if e.Type == model.EntryTree {
		if existing != nil && existing.IsDir() {
			return nil
		}
		node := newDirectory(parent, name)
		if existing != nil {
			b.replace(parent, node)
			return nil
		}
		b.add(parent, node)
		return nil
	}

	node := &model.TreeNode{
		Name:        name,
		Path:        joinPath(parent.Path, name),
		Kind:        model.KindFile,
		Size:        e.Size,
		ContentHash: e.SHA,
	}
	if existing != nil {
		b.replace(parent, node)
		return nil
	}
	b.add(parent, node)
	return nil
}

func (b *builder) child(parent *model.TreeNode, name string) *model.TreeNode {
	if i, ok := b.index[parent][name]; ok {
		return parent.Children[i]
	}
	return nil
}

func (b *builder) add(parent, node *model.TreeNode) *model.TreeNode {
	b.index[parent][node.Name] = len(parent.Children)
	parent.Children = append(parent.Children, node)
	if node.IsDir() {
		b.index[node] = map[string]int{}
	}
	return node
}

func (b *builder) replace(parent, node *model.TreeNode) {
	i := b.index[parent][node.Name]
	delete(b.index, parent.Children[i])
	parent.Children[i] = node
	if node.IsDir() {
		b.index[node] = map[string]int{}
	}
}

func newDirectory(parent *model.TreeNode, name string) *model.TreeNode {
	return &model.TreeNode{
		Name:     name,
		Path:     joinPath(parent.Path, name),
		Kind:     model.KindDirectory,
		Children: []*model.TreeNode{},
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
