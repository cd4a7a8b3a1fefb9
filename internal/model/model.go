// Package model holds the flat record types shared by the history miner:
// ranges, entity kinds, change kinds and commits.
package model

import (
	"fmt"
	"time"
)

// Kind is the syntactic kind of an entity (file, class, method, ...).
// Kinds other than KindFile come from the capture rules of a language.
type Kind string

const (
	KindFile        Kind = "file"
	KindClass       Kind = "class"
	KindInterface   Kind = "interface"
	KindEnum        Kind = "enum"
	KindRecord      Kind = "record"
	KindMethod      Kind = "method"
	KindConstructor Kind = "constructor"
	KindField       Kind = "field"
	KindFunction    Kind = "function"
	KindType        Kind = "type"
	KindModule      Kind = "module"
)

// ChangeKind classifies a change row.
type ChangeKind string

const (
	Added    ChangeKind = "A"
	Deleted  ChangeKind = "D"
	Modified ChangeKind = "M"
)

// String returns the long name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	default:
		return string(k)
	}
}

// ParseChangeKind accepts the stored single-letter form.
func ParseChangeKind(s string) (ChangeKind, error) {
	switch ChangeKind(s) {
	case Added, Deleted, Modified:
		return ChangeKind(s), nil
	}
	return "", fmt.Errorf("unknown change kind %q", s)
}

// Point is a zero-based row and byte column.
type Point struct {
	Row    uint32 `json:"row" yaml:"row"`
	Column uint32 `json:"column" yaml:"column"`
}

// Range is an immutable byte/row/column span, half-open on bytes.
type Range struct {
	StartByte uint32 `json:"startByte" yaml:"startByte"`
	EndByte   uint32 `json:"endByte" yaml:"endByte"`
	Start     Point  `json:"start" yaml:"start"`
	End       Point  `json:"end" yaml:"end"`
}

// Contains reports whether o lies within r.
func (r Range) Contains(o Range) bool {
	return r.StartByte <= o.StartByte && o.EndByte <= r.EndByte
}

// StrictlyContains reports whether o lies within r and the two differ.
func (r Range) StrictlyContains(o Range) bool {
	return r.Contains(o) && r != o
}

// FirstLine returns the 1-based first line covered by the range.
func (r Range) FirstLine() int {
	return int(r.Start.Row) + 1
}

// LastLine returns the 1-based last line covered by the range. A range
// ending at column 0 does not cover the row it ends on.
func (r Range) LastLine() int {
	last := int(r.End.Row) + 1
	if r.End.Column == 0 && r.End.Row > r.Start.Row {
		last--
	}
	return last
}

// CoversLine reports whether 1-based line falls within the range's lines.
func (r Range) CoversLine(line int) bool {
	return line >= r.FirstLine() && line <= r.LastLine()
}

// Commit is an observed commit and its readiness flags. Generation is its
// topological depth: roots are 1, other commits one more than their highest
// parent.
type Commit struct {
	ID                  int64     `json:"id" yaml:"id"`
	SHA                 string    `json:"sha" yaml:"sha"`
	IsMerge             bool      `json:"isMerge" yaml:"isMerge"`
	AuthorDate          time.Time `json:"authorDate" yaml:"authorDate"`
	CommitDate          time.Time `json:"commitDate" yaml:"commitDate"`
	HasChangeInfo       bool      `json:"hasChangeInfo" yaml:"hasChangeInfo"`
	HasPresenceInfo     bool      `json:"hasPresenceInfo" yaml:"hasPresenceInfo"`
	HasReachabilityInfo bool      `json:"hasReachabilityInfo" yaml:"hasReachabilityInfo"`
	Generation          int64     `json:"generation,omitempty" yaml:"generation,omitempty"` // 0 while a parent is unknown
}

// Complete reports whether every derived fact has been computed.
func (c *Commit) Complete() bool {
	return c.HasChangeInfo && c.HasPresenceInfo && c.HasReachabilityInfo
}

// Entity is a persistent identity for a syntactic construct.
type Entity struct {
	ID       int64  `json:"id" yaml:"id"`
	ParentID int64  `json:"parentId,omitempty" yaml:"parentId,omitempty"` // 0 for file entities
	Name     string `json:"name" yaml:"name"`
	Kind     Kind   `json:"kind" yaml:"kind"`
}

// Change is one entity's line delta in one commit.
type Change struct {
	CommitID int64      `json:"commitId" yaml:"commitId"`
	EntityID int64      `json:"entityId" yaml:"entityId"`
	Kind     ChangeKind `json:"kind" yaml:"kind"`
	Adds     int        `json:"adds" yaml:"adds"`
	Dels     int        `json:"dels" yaml:"dels"`
}

// Presence places an entity in one commit's version of its file.
type Presence struct {
	CommitID  int64 `json:"commitId" yaml:"commitId"`
	EntityID  int64 `json:"entityId" yaml:"entityId"`
	FileID    int64 `json:"fileId" yaml:"fileId"`
	NameRange Range `json:"nameRange" yaml:"nameRange"`
	BodyRange Range `json:"bodyRange" yaml:"bodyRange"`
}
