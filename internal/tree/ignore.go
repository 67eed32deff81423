package tree

import (
	"strings"
)

// DefaultIgnoredSegments are path segments that drop an entry wherever they appear.
var DefaultIgnoredSegments = []string{
	"node_modules", ".git", "build", "dist", "target", ".venv", "venv",
	"__pycache__", ".idea", ".vscode", ".next", "coverage", ".DS_Store",
}

// DefaultIgnoredExtensions drop an entry whose file name ends with one of them.
var DefaultIgnoredExtensions = []string{".pyc", ".pyo", ".pyd"}

// DefaultIgnoredFilenames drop an entry whose file name is exactly one of them.
var DefaultIgnoredFilenames = []string{".env", ".DS_Store"}

// IgnorePolicy decides which tree entries are left out of a snapshot.
// Matching is case-insensitive. The zero value ignores nothing.
type IgnorePolicy struct {
	segments   map[string]struct{}
	extensions []string
	filenames  map[string]struct{}
}

// NewIgnorePolicy builds a policy. The inputs are copied, so the policy cannot be changed afterwards.
func NewIgnorePolicy(segments, extensions, filenames []string) IgnorePolicy {
	p := IgnorePolicy{
		segments:  make(map[string]struct{}, len(segments)),
		filenames: make(map[string]struct{}, len(filenames)),
	}
	for _, s := range segments {
		p.segments[strings.ToLower(s)] = struct{}{}
	}
	for _, e := range extensions {
		p.extensions = append(p.extensions, strings.ToLower(e))
	}
	for _, f := range filenames {
		p.filenames[strings.ToLower(f)] = struct{}{}
	}
	return p
}

// DefaultIgnorePolicy returns the built-in policy extended with extra segments.
func DefaultIgnorePolicy(extraSegments ...string) IgnorePolicy {
	segments := append(append([]string{}, DefaultIgnoredSegments...), extraSegments...)
	return NewIgnorePolicy(segments, DefaultIgnoredExtensions, DefaultIgnoredFilenames)
}

// Ignored reports whether the slash-separated path must be dropped.
func (p IgnorePolicy) Ignored(path string) bool {
	parts := strings.Split(strings.ToLower(path), "/")
	for _, part := range parts {
		if _, ok := p.segments[part]; ok {
			return true
		}
	}

	name := parts[len(parts)-1]
	if _, ok := p.filenames[name]; ok {
		return true
	}
	for _, ext := range p.extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
