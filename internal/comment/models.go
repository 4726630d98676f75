// Package comment holds the entity model and the pure aggregation logic
// of the commenting engine: reaction merging, display aggregation, and
// sort/page selection. Nothing in this package performs I/O.
package comment

import "time"

// Reaction is one user's active reaction on a target. Count is always 1
// in the stored record; totals are aggregated at render time.
type Reaction struct {
	Emoji  string `json:"emoji"`
	Count  int    `json:"count"`
	UserID string `json:"userId"`
}

// Comment is a top-level comment. Content is sanitized HTML produced by
// the editor and is immutable after creation. Replies holds reply ids
// only; the reply documents live in their own collection.
type Comment struct {
	ID            string     `json:"id"`
	UID           string     `json:"uid"`
	DisplayName   string     `json:"displayName"`
	PhotoURL      string     `json:"photoURL"`
	Content       string     `json:"content"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	Reactions     []Reaction `json:"reactions"`
	Replies       []string   `json:"replies"`
	RepliesCount  int        `json:"repliesCount"`
	ReactionCount int        `json:"reactionCount"`
	Revision      int64      `json:"revision"`
}

// Reply has the same display shape as a Comment plus a back-reference
// to its parent. A reply never carries replies of its own.
type Reply struct {
	ID            string     `json:"id"`
	CommentID     string     `json:"commentId"`
	UID           string     `json:"uid"`
	DisplayName   string     `json:"displayName"`
	PhotoURL      string     `json:"photoURL"`
	Content       string     `json:"content"`
	CreatedAt     time.Time  `json:"createdAt"`
	Reactions     []Reaction `json:"reactions"`
	ReactionCount int        `json:"reactionCount"`
	Revision      int64      `json:"revision"`
}

// Kind names a reactable collection.
type Kind string

const (
	KindComment Kind = "comments"
	KindReply   Kind = "replies"
)

// Target unifies Comment and Reply for reaction handling: anything with
// an id, a reaction list, and a revision counter.
type Target interface {
	TargetID() string
	TargetKind() Kind
	ReactionList() []Reaction
	TargetRevision() int64
}

func (c Comment) TargetID() string         { return c.ID }
func (c Comment) TargetKind() Kind         { return KindComment }
func (c Comment) ReactionList() []Reaction { return c.Reactions }
func (c Comment) TargetRevision() int64    { return c.Revision }

func (r Reply) TargetID() string         { return r.ID }
func (r Reply) TargetKind() Kind         { return KindReply }
func (r Reply) ReactionList() []Reaction { return r.Reactions }
func (r Reply) TargetRevision() int64    { return r.Revision }

// AsComment renders a reply as a comment-shaped display item. Replies
// are display-polymorphic with comments but never expose reply
// affordances themselves, so Replies/RepliesCount stay zero.
func (r Reply) AsComment() Comment {
	return Comment{
		ID:            r.ID,
		UID:           r.UID,
		DisplayName:   r.DisplayName,
		PhotoURL:      r.PhotoURL,
		Content:       r.Content,
		CreatedAt:     r.CreatedAt,
		Reactions:     r.Reactions,
		Replies:       []string{},
		ReactionCount: r.ReactionCount,
		Revision:      r.Revision,
	}
}

// SortKey selects the feed ordering.
type SortKey string

const (
	SortLatest     SortKey = "latest"
	SortPopularity SortKey = "popularity"
)

// OrderField maps a sort key to the stored field the collection is
// ordered by, descending.
func (k SortKey) OrderField() string {
	if k == SortPopularity {
		return "reactionCount"
	}
	return "createdAt"
}

// ParseSortKey normalizes a user-supplied sort name, defaulting to
// latest.
func ParseSortKey(value string) SortKey {
	if value == string(SortPopularity) {
		return SortPopularity
	}
	return SortLatest
}
