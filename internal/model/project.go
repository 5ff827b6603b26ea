package model

import "time"

// VCS identifies the version control system backing a project's worktree.
type VCS string

const (
	VCSGit  VCS = "git"
	VCSNone VCS = "none"
)

// GlobalProjectID is the sentinel project id used when a worktree has no git
// first-commit hash available.
const GlobalProjectID = "global"

// ProjectTime tracks a project's lifecycle timestamps.
type ProjectTime struct {
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
	Initialized *time.Time `json:"initialized,omitempty"`
}

// Project is the top-level container for sessions rooted at a worktree.
// Id is the git first-commit hash when available, else GlobalProjectID.
// Projects are created on first access and touched on each access.
type Project struct {
	ID           string      `json:"id"`
	WorktreePath string      `json:"worktree_path"`
	VCS          VCS         `json:"vcs"`
	Name         string      `json:"name,omitempty"`
	Icon         string      `json:"icon,omitempty"`
	Time         ProjectTime `json:"time"`
}

// Touch updates the project's Updated timestamp.
func (p *Project) Touch(now time.Time) {
	p.Time.Updated = now
}
