package tree

import "github-repo-sync/internal/model"

// ViewNode is a TreeNode as served to clients, with cached file content attached.
type ViewNode struct {
	Name        string         `json:"name"`
	Path        string         `json:"path"`
	Kind        model.NodeKind `json:"kind"`
	Size        *int64         `json:"size,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	Content     *string        `json:"content,omitempty"`
	Cached      bool           `json:"cached"`
	Children    []*ViewNode    `json:"children,omitempty"`
}

// WithCachedContent joins cached file contents onto a copy of root.
// root itself is never modified.
func WithCachedContent(root *model.TreeNode, files []model.CachedFile) *ViewNode {
	if root == nil {
		return nil
	}
	byPath := make(map[string]*model.CachedFile, len(files))
	for i := range files {
		byPath[files[i].Path] = &files[i]
	}
	return buildView(root, byPath)
}

func buildView(n *model.TreeNode, byPath map[string]*model.CachedFile) *ViewNode {
	v := &ViewNode{
		Name:        n.Name,
		Path:        n.Path,
		Kind:        n.Kind,
		Size:        n.Size,
		ContentHash: n.ContentHash,
	}
	if !n.IsDir() {
		if f, ok := byPath[n.Path]; ok {
			content := f.Content
			v.Content = &content
			v.Cached = true
		}
		return v
	}
	v.Children = make([]*ViewNode, 0, len(n.Children))
	for _, c := range n.Children {
		v.Children = append(v.Children, buildView(c, byPath))
	}
	return v
}
