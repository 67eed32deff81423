package model

import "time"

// ProjectStatus is the ingestion state of a Project.
type ProjectStatus string

const (
	StatusPending ProjectStatus = "PENDING"
	StatusActive  ProjectStatus = "ACTIVE"
	StatusFailed  ProjectStatus = "FAILED"
)

// Project is one imported repository owned by a user.
type Project struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	RepositoryID  string        `json:"repository_id"`
	Owner         string        `json:"owner"`
	Name          string        `json:"name"`
	DefaultBranch string        `json:"default_branch"`
	Status        ProjectStatus `json:"status"`
	Accessible    bool          `json:"accessible"`
	FileTree      *Snapshot     `json:"file_tree,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// MarkPending puts the project back into PENDING ahead of a new ingestion run.
func (p *Project) MarkPending(now time.Time) {
	p.Status = StatusPending
	p.Accessible = false
	p.UpdatedAt = now
}

// MarkActive records a successful ingestion run.
func (p *Project) MarkActive(snapshot *Snapshot, now time.Time) {
	p.FileTree = snapshot
	p.Status = StatusActive
	p.Accessible = true
	p.ErrorMessage = ""
	p.UpdatedAt = now
}

// MarkFailed records a failed ingestion run. The previous snapshot is kept.
func (p *Project) MarkFailed(cause error, now time.Time) {
	p.Status = StatusFailed
	p.Accessible = false
	p.ErrorMessage = cause.Error()
	p.UpdatedAt = now
}

// Snapshot is the point-in-time content of a project after a successful ingestion run.
type Snapshot struct {
	CommitSHA    string                `json:"sha"`
	Branch       string                `json:"branch"`
	Main         *TreeNode             `json:"main"`
	PullRequests []PullRequestSnapshot `json:"pull_requests"`
}

// NodeKind tags a TreeNode as a file or a directory.
type NodeKind string

const (
	KindFile      NodeKind = "file"
	KindDirectory NodeKind = "directory"
)

// TreeNode is a file or directory of a snapshot tree. Only directories have children.
type TreeNode struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	Kind        NodeKind    `json:"kind"`
	Size        *int64      `json:"size,omitempty"`
	ContentHash string      `json:"content_hash,omitempty"`
	Children    []*TreeNode `json:"children,omitempty"`
}

// IsDir reports whether the node is a directory.
func (n *TreeNode) IsDir() bool { return n.Kind == KindDirectory }

// CachedFile is the cached content of one file of a project, keyed by (ProjectID, Path).
type CachedFile struct {
	ProjectID    string
	Path         string
	Content      string
	Size         *int64
	ContentHash  string
	LastUpdated  time.Time
	LastAccessed time.Time
}

// PullRequestSnapshot is one pull request embedded in a Snapshot.
type PullRequestSnapshot struct {
	Number    int               `json:"number"`
	Title     string            `json:"title"`
	State     string            `json:"state"`
	Author    string            `json:"author"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Content   PullRequestBundle `json:"content"`
}

// PullRequest is the remote detail record of a pull request.
type PullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	State     string     `json:"state"`
	Author    string     `json:"author"`
	HTMLURL   string     `json:"html_url"`
	HeadRef   string     `json:"head_ref"`
	HeadSHA   string     `json:"head_sha"`
	BaseRef   string     `json:"base_ref"`
	Merged    bool       `json:"merged"`
	Draft     bool       `json:"draft"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
}

// PullRequestFile is one changed file of a pull request.
type PullRequestFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch,omitempty"`
	SHA       string `json:"sha"`
}

// ReviewComment is a review comment left on a pull request diff.
type ReviewComment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Path      string    `json:"path"`
	Line      int       `json:"line,omitempty"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

// PullRequestBundle is the details, changed files and review comments of one pull request.
type PullRequestBundle struct {
	Details  PullRequest       `json:"details"`
	Files    []PullRequestFile `json:"files"`
	Comments []ReviewComment   `json:"comments"`
}

// FileContent is one file's content as returned by the remote or the cache.
type FileContent struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Size        *int64 `json:"size,omitempty"`
	ContentHash string `json:"sha,omitempty"`
	Cached      bool   `json:"cached"`
}
