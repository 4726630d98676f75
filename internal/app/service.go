package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"banter/api/internal/blob"
	"banter/api/internal/comment"
	"banter/api/internal/config"
	"banter/api/internal/feed"
	"banter/api/internal/identity"
	"banter/api/internal/notify"
	"banter/api/internal/search"
	"banter/api/internal/store"
	"banter/api/internal/util"
)

type CreateCommentInput struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

type CreateReplyInput struct {
	Content string `json:"content"`
}

type ReactInput struct {
	Emoji string `json:"emoji"`
}

// ReactionState is the render state of one target after a reaction
// write: the raw per-user records plus the aggregated picker view.
type ReactionState struct {
	Reactions   []comment.Reaction   `json:"reactions"`
	Totals      []comment.EmojiCount `json:"totals"`
	ActiveEmoji string               `json:"activeEmoji,omitempty"`
}

type dataStore interface {
	CreateComment(context.Context, comment.Comment) (comment.Comment, error)
	CreateReply(context.Context, comment.Reply) (comment.Reply, error)
	AttachReplyRef(context.Context, string, string) (bool, error)
	OverwriteReactions(context.Context, comment.Kind, string, []comment.Reaction, int64) (int64, error)
	GetTarget(context.Context, comment.Kind, string) ([]comment.Reaction, int64, error)
	ListCommentsOrdered(context.Context, comment.SortKey) ([]comment.Comment, error)
	RepliesByComment(context.Context, string) ([]comment.Reply, error)
	Ping(ctx context.Context) error
}

type changePublisher interface {
	PublishChange(context.Context, comment.Kind, string) error
	Ping(context.Context) error
}

type identityService interface {
	SignIn(ctx context.Context, name, password, photoURL string) (identity.Session, error)
	Current(ctx context.Context, token string) (identity.UserRecord, error)
	Refresh(ctx context.Context, refreshToken string) (identity.Session, error)
	SignOut(ctx context.Context, refreshToken string)
}

type searchIndex interface {
	Index(rec search.Record)
	Search(q search.Query) search.Response
}

type blobStore interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	bus      changePublisher
	feedBus  feed.ChangeBus
	identity identityService
	search   searchIndex
	blobs    blobStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, bus *notify.Bus, identitySvc *identity.Service, searchService *search.Service, blobs *blob.Store) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		identity: identitySvc,
	}
	// Typed nils must not reach the interface fields.
	if bus != nil {
		s.bus = bus
		s.feedBus = feed.OverRedis(bus)
	}
	if searchService != nil {
		s.search = searchService
	}
	if blobs != nil {
		s.blobs = blobs
	}
	return s
}

// PostComment creates a top-level comment stamped with the acting
// user's identity snapshot.
func (s *Service) PostComment(ctx context.Context, user identity.UserRecord, input CreateCommentInput) (comment.Comment, error) {
	if user.UID == "" {
		return comment.Comment{}, domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in to comment", nil)
	}
	if strings.TrimSpace(input.Content) == "" {
		return comment.Comment{}, domainError(http.StatusBadRequest, "EMPTY_CONTENT", "Comment content is required", nil)
	}

	created, err := s.store.CreateComment(ctx, comment.Comment{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
		Content:     input.Content,
		ImageURL:    input.ImageURL,
	})
	if err != nil {
		return comment.Comment{}, fmt.Errorf("create comment: %w", err)
	}

	s.publish(ctx, comment.KindComment, created.ID)
	s.indexComment(created)
	return created, nil
}

// PostReply creates a reply and attaches its reference to the parent.
// The two writes are not atomic: if the attach step fails the reply
// document stays, the parent's reply list misses the reference, and
// the failure is logged for reconciliation.
func (s *Service) PostReply(ctx context.Context, user identity.UserRecord, commentID string, input CreateReplyInput) (comment.Reply, error) {
	if user.UID == "" {
		return comment.Reply{}, domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in to reply", nil)
	}
	if strings.TrimSpace(input.Content) == "" {
		return comment.Reply{}, domainError(http.StatusBadRequest, "EMPTY_CONTENT", "Reply content is required", nil)
	}

	created, err := s.store.CreateReply(ctx, comment.Reply{
		ID:          util.NewID("rpl"),
		CommentID:   commentID,
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
		Content:     input.Content,
	})
	if err != nil {
		return comment.Reply{}, fmt.Errorf("create reply: %w", err)
	}

	attached, err := s.store.AttachReplyRef(ctx, commentID, created.ID)
	if err != nil {
		log.Printf("WARNING: reply %s created but not attached to comment %s: %v", created.ID, commentID, err)
	} else if !attached {
		log.Printf("WARNING: reply %s created but parent comment %s not found", created.ID, commentID)
	}

	s.publish(ctx, comment.KindReply, created.ID)
	s.publish(ctx, comment.KindComment, commentID)
	s.indexReply(created)
	return created, nil
}

// SubmitReaction merges the user's reaction into the target under
// one-reaction-per-user semantics and overwrites the target's reaction
// document. Re-selecting the current emoji is a no-op and issues no
// write. The overwrite is revision-guarded; a lost race re-reads the
// target and retries with the fresh state, so the last writer's merge
// wins over the stale one.
func (s *Service) SubmitReaction(ctx context.Context, user identity.UserRecord, kind comment.Kind, id, emoji string) (ReactionState, error) {
	if user.UID == "" {
		return ReactionState{}, domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in to react", nil)
	}
	if !comment.InPalette(emoji) {
		return ReactionState{}, domainError(http.StatusBadRequest, "UNKNOWN_EMOJI", "Emoji is not in the palette", map[string]any{"palette": comment.Palette})
	}

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		current, revision, err := s.store.GetTarget(ctx, kind, id)
		if err != nil {
			return ReactionState{}, err
		}

		updated, changed := comment.ApplyReaction(current, user.UID, emoji)
		if !changed {
			return reactionState(current, user.UID), nil
		}

		_, err = s.store.OverwriteReactions(ctx, kind, id, updated, revision)
		if err == nil {
			s.publish(ctx, kind, id)
			return reactionState(updated, user.UID), nil
		}
		if !errors.Is(err, store.ErrRevisionConflict) {
			return ReactionState{}, err
		}
	}

	log.Printf("WARNING: reaction on %s %s lost the revision race %d times, giving up", kind, id, maxAttempts)
	return ReactionState{}, domainError(http.StatusConflict, "REACTION_CONFLICT", "Reaction lost a concurrent update, retry", nil)
}

// FetchReplies expands a thread: the lazy equality query over the
// replies collection, ordered oldest first and rendered comment-shaped.
func (s *Service) FetchReplies(ctx context.Context, commentID string) ([]comment.Comment, error) {
	replies, err := s.store.RepliesByComment(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("fetch replies: %w", err)
	}

	sort.Slice(replies, func(i, j int) bool {
		if replies[i].CreatedAt.Equal(replies[j].CreatedAt) {
			return replies[i].ID < replies[j].ID
		}
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})

	items := make([]comment.Comment, 0, len(replies))
	for _, reply := range replies {
		items = append(items, reply.AsComment())
	}
	return items, nil
}

// ListPage reads a fresh ordered snapshot and selects the requested
// page. Out-of-range page indexes clamp.
func (s *Service) ListPage(ctx context.Context, key comment.SortKey, pageIndex int) (comment.Page, error) {
	list, err := s.store.ListCommentsOrdered(ctx, key)
	if err != nil {
		return comment.Page{}, fmt.Errorf("list comments: %w", err)
	}
	return comment.SelectPage(list, pageIndex, s.cfg.PageSize), nil
}

// OpenFeed starts a live view over the comment collection for the
// given sort order.
func (s *Service) OpenFeed(ctx context.Context, key comment.SortKey) (*feed.View, error) {
	if s.feedBus == nil {
		return nil, domainError(http.StatusServiceUnavailable, "FEED_UNAVAILABLE", "Live updates are not configured", nil)
	}
	return feed.Open(ctx, s.store, s.feedBus, key)
}

// UploadImage stores an editor image and returns its URL.
func (s *Service) UploadImage(ctx context.Context, user identity.UserRecord, name string, data []byte, contentType string) (string, error) {
	if user.UID == "" {
		return "", domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in to upload", nil)
	}
	if s.blobs == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Image uploads are not configured", nil)
	}
	if len(data) == 0 {
		return "", domainError(http.StatusBadRequest, "EMPTY_UPLOAD", "Upload body is empty", nil)
	}
	url, err := s.blobs.Upload(ctx, name, data, contentType)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return url, nil
}

// Search runs a full-text search over comments and replies.
func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) Identity() identityService {
	return s.identity
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingBus(ctx context.Context) error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Ping(ctx)
}

func (s *Service) publish(ctx context.Context, kind comment.Kind, id string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishChange(ctx, kind, id); err != nil {
		log.Printf("WARNING: change mark for %s %s not published: %v", kind, id, err)
	}
}

func (s *Service) indexComment(item comment.Comment) {
	if s.search == nil {
		return
	}
	s.search.Index(search.Record{
		ID:          item.ID,
		Kind:        string(search.ResultComment),
		Content:     item.Content,
		DisplayName: item.DisplayName,
	})
}

func (s *Service) indexReply(item comment.Reply) {
	if s.search == nil {
		return
	}
	s.search.Index(search.Record{
		ID:          item.ID,
		Kind:        string(search.ResultReply),
		Content:     item.Content,
		DisplayName: item.DisplayName,
		CommentID:   item.CommentID,
	})
}

func reactionState(list []comment.Reaction, userID string) ReactionState {
	state := ReactionState{
		Reactions: list,
		Totals:    comment.AggregateReactions(list),
	}
	if active, ok := comment.ActiveEmoji(list, userID); ok {
		state.ActiveEmoji = active
	}
	return state
}
