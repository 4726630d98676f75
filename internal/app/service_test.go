package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"banter/api/internal/comment"
	"banter/api/internal/config"
	"banter/api/internal/identity"
	"banter/api/internal/store"
)

type fakeStore struct {
	createCommentFn      func(context.Context, comment.Comment) (comment.Comment, error)
	createReplyFn        func(context.Context, comment.Reply) (comment.Reply, error)
	attachReplyRefFn     func(context.Context, string, string) (bool, error)
	overwriteReactionsFn func(context.Context, comment.Kind, string, []comment.Reaction, int64) (int64, error)
	getTargetFn          func(context.Context, comment.Kind, string) ([]comment.Reaction, int64, error)
	listCommentsFn       func(context.Context, comment.SortKey) ([]comment.Comment, error)
	repliesByCommentFn   func(context.Context, string) ([]comment.Reply, error)
}

func (f *fakeStore) CreateComment(ctx context.Context, item comment.Comment) (comment.Comment, error) {
	if f.createCommentFn != nil {
		return f.createCommentFn(ctx, item)
	}
	item.ID = "cmt_test"
	item.CreatedAt = time.Now()
	return item, nil
}
func (f *fakeStore) CreateReply(ctx context.Context, item comment.Reply) (comment.Reply, error) {
	if f.createReplyFn != nil {
		return f.createReplyFn(ctx, item)
	}
	item.CreatedAt = time.Now()
	return item, nil
}
func (f *fakeStore) AttachReplyRef(ctx context.Context, commentID, replyID string) (bool, error) {
	if f.attachReplyRefFn != nil {
		return f.attachReplyRefFn(ctx, commentID, replyID)
	}
	return true, nil
}
func (f *fakeStore) OverwriteReactions(ctx context.Context, kind comment.Kind, id string, reactions []comment.Reaction, expectedRevision int64) (int64, error) {
	if f.overwriteReactionsFn != nil {
		return f.overwriteReactionsFn(ctx, kind, id, reactions, expectedRevision)
	}
	return expectedRevision + 1, nil
}
func (f *fakeStore) GetTarget(ctx context.Context, kind comment.Kind, id string) ([]comment.Reaction, int64, error) {
	if f.getTargetFn != nil {
		return f.getTargetFn(ctx, kind, id)
	}
	return []comment.Reaction{}, 1, nil
}
func (f *fakeStore) ListCommentsOrdered(ctx context.Context, key comment.SortKey) ([]comment.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, key)
	}
	return []comment.Comment{}, nil
}
func (f *fakeStore) RepliesByComment(ctx context.Context, commentID string) ([]comment.Reply, error) {
	if f.repliesByCommentFn != nil {
		return f.repliesByCommentFn(ctx, commentID)
	}
	return []comment.Reply{}, nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeBus struct {
	published []string
}

func (f *fakeBus) PublishChange(_ context.Context, kind comment.Kind, id string) error {
	f.published = append(f.published, string(kind)+"/"+id)
	return nil
}
func (f *fakeBus) Ping(context.Context) error { return nil }

func newTestService(fake *fakeStore, bus *fakeBus) *Service {
	s := &Service{
		cfg:   config.Config{PageSize: comment.DefaultPageSize},
		store: fake,
	}
	if bus != nil {
		s.bus = bus
	}
	return s
}

var testUser = identity.UserRecord{UID: "usr_1", DisplayName: "Avery", PhotoURL: "https://example.com/a.png"}

func TestPostCommentRequiresUser(t *testing.T) {
	service := newTestService(&fakeStore{}, nil)

	_, err := service.PostComment(context.Background(), identity.UserRecord{}, CreateCommentInput{Content: "hello"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 401 {
		t.Fatalf("expected 401 domain error, got %v", err)
	}
}

func TestPostCommentRejectsEmptyContent(t *testing.T) {
	service := newTestService(&fakeStore{}, nil)

	_, err := service.PostComment(context.Background(), testUser, CreateCommentInput{Content: "   "})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "EMPTY_CONTENT" {
		t.Fatalf("expected EMPTY_CONTENT, got %v", err)
	}
}

func TestPostCommentStampsUserAndPublishes(t *testing.T) {
	bus := &fakeBus{}
	var inserted comment.Comment
	fake := &fakeStore{
		createCommentFn: func(_ context.Context, item comment.Comment) (comment.Comment, error) {
			inserted = item
			item.ID = "cmt_1"
			return item, nil
		},
	}
	service := newTestService(fake, bus)

	created, err := service.PostComment(context.Background(), testUser, CreateCommentInput{Content: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("PostComment failed: %v", err)
	}
	if inserted.UID != "usr_1" || inserted.DisplayName != "Avery" {
		t.Errorf("comment not stamped with user: %+v", inserted)
	}
	if created.ID != "cmt_1" {
		t.Errorf("unexpected id %q", created.ID)
	}
	if len(bus.published) != 1 || bus.published[0] != "comments/cmt_1" {
		t.Errorf("unexpected change marks: %v", bus.published)
	}
}

func TestPostReplySagaAttachesRef(t *testing.T) {
	bus := &fakeBus{}
	var attachedComment, attachedReply string
	fake := &fakeStore{
		attachReplyRefFn: func(_ context.Context, commentID, replyID string) (bool, error) {
			attachedComment, attachedReply = commentID, replyID
			return true, nil
		},
	}
	service := newTestService(fake, bus)

	created, err := service.PostReply(context.Background(), testUser, "cmt_1", CreateReplyInput{Content: "yo"})
	if err != nil {
		t.Fatalf("PostReply failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("reply id not assigned")
	}
	if attachedComment != "cmt_1" || attachedReply != created.ID {
		t.Errorf("attach got (%q, %q)", attachedComment, attachedReply)
	}
	if len(bus.published) != 2 {
		t.Errorf("expected marks for reply and parent, got %v", bus.published)
	}
}

func TestPostReplySurvivesAttachFailure(t *testing.T) {
	fake := &fakeStore{
		attachReplyRefFn: func(context.Context, string, string) (bool, error) {
			return false, errors.New("connection reset")
		},
	}
	service := newTestService(fake, &fakeBus{})

	created, err := service.PostReply(context.Background(), testUser, "cmt_1", CreateReplyInput{Content: "yo"})
	if err != nil {
		t.Fatalf("PostReply should not fail when the attach step fails: %v", err)
	}
	if created.Content != "yo" {
		t.Errorf("unexpected reply: %+v", created)
	}
}

func TestSubmitReactionAppends(t *testing.T) {
	bus := &fakeBus{}
	var written []comment.Reaction
	fake := &fakeStore{
		getTargetFn: func(context.Context, comment.Kind, string) ([]comment.Reaction, int64, error) {
			return []comment.Reaction{{Emoji: "❤️", Count: 1, UserID: "usr_2"}}, 4, nil
		},
		overwriteReactionsFn: func(_ context.Context, _ comment.Kind, _ string, reactions []comment.Reaction, expectedRevision int64) (int64, error) {
			if expectedRevision != 4 {
				t.Errorf("expected revision 4, got %d", expectedRevision)
			}
			written = reactions
			return 5, nil
		},
	}
	service := newTestService(fake, bus)

	state, err := service.SubmitReaction(context.Background(), testUser, comment.KindComment, "cmt_1", "👍")
	if err != nil {
		t.Fatalf("SubmitReaction failed: %v", err)
	}
	if len(written) != 2 || written[1].UserID != "usr_1" || written[1].Emoji != "👍" {
		t.Errorf("unexpected written list: %+v", written)
	}
	if state.ActiveEmoji != "👍" {
		t.Errorf("active emoji %q", state.ActiveEmoji)
	}
	if len(bus.published) != 1 {
		t.Errorf("expected one change mark, got %v", bus.published)
	}
}

func TestSubmitReactionNoOpSkipsWrite(t *testing.T) {
	bus := &fakeBus{}
	writes := 0
	fake := &fakeStore{
		getTargetFn: func(context.Context, comment.Kind, string) ([]comment.Reaction, int64, error) {
			return []comment.Reaction{{Emoji: "👍", Count: 1, UserID: "usr_1"}}, 4, nil
		},
		overwriteReactionsFn: func(context.Context, comment.Kind, string, []comment.Reaction, int64) (int64, error) {
			writes++
			return 5, nil
		},
	}
	service := newTestService(fake, bus)

	state, err := service.SubmitReaction(context.Background(), testUser, comment.KindComment, "cmt_1", "👍")
	if err != nil {
		t.Fatalf("SubmitReaction failed: %v", err)
	}
	if writes != 0 {
		t.Errorf("re-selecting the active emoji issued %d writes", writes)
	}
	if len(bus.published) != 0 {
		t.Errorf("no-op reaction published marks: %v", bus.published)
	}
	if state.ActiveEmoji != "👍" {
		t.Errorf("active emoji %q", state.ActiveEmoji)
	}
}

func TestSubmitReactionRejectsUnknownEmoji(t *testing.T) {
	service := newTestService(&fakeStore{}, nil)

	_, err := service.SubmitReaction(context.Background(), testUser, comment.KindComment, "cmt_1", "🦄")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UNKNOWN_EMOJI" {
		t.Fatalf("expected UNKNOWN_EMOJI, got %v", err)
	}
}

func TestSubmitReactionRetriesOnRevisionConflict(t *testing.T) {
	reads := 0
	fake := &fakeStore{
		getTargetFn: func(context.Context, comment.Kind, string) ([]comment.Reaction, int64, error) {
			reads++
			return []comment.Reaction{}, int64(reads), nil
		},
		overwriteReactionsFn: func(_ context.Context, _ comment.Kind, _ string, _ []comment.Reaction, expectedRevision int64) (int64, error) {
			if expectedRevision == 1 {
				return 0, store.ErrRevisionConflict
			}
			return expectedRevision + 1, nil
		},
	}
	service := newTestService(fake, &fakeBus{})

	if _, err := service.SubmitReaction(context.Background(), testUser, comment.KindComment, "cmt_1", "👍"); err != nil {
		t.Fatalf("SubmitReaction failed after retry: %v", err)
	}
	if reads != 2 {
		t.Errorf("expected a re-read after the conflict, got %d reads", reads)
	}
}

func TestSubmitReactionGivesUpAfterRepeatedConflicts(t *testing.T) {
	fake := &fakeStore{
		overwriteReactionsFn: func(context.Context, comment.Kind, string, []comment.Reaction, int64) (int64, error) {
			return 0, store.ErrRevisionConflict
		},
	}
	service := newTestService(fake, &fakeBus{})

	_, err := service.SubmitReaction(context.Background(), testUser, comment.KindComment, "cmt_1", "👍")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 409 {
		t.Fatalf("expected 409 domain error, got %v", err)
	}
}

func TestFetchRepliesOrdersOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeStore{
		repliesByCommentFn: func(context.Context, string) ([]comment.Reply, error) {
			return []comment.Reply{
				{ID: "rpl_b", CommentID: "cmt_1", Content: "second", CreatedAt: base.Add(time.Minute)},
				{ID: "rpl_a", CommentID: "cmt_1", Content: "first", CreatedAt: base},
			}, nil
		},
	}
	service := newTestService(fake, nil)

	items, err := service.FetchReplies(context.Background(), "cmt_1")
	if err != nil {
		t.Fatalf("FetchReplies failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != "rpl_a" || items[1].ID != "rpl_b" {
		t.Fatalf("unexpected order: %+v", items)
	}
	if items[0].RepliesCount != 0 || len(items[0].Replies) != 0 {
		t.Error("reply rendered with reply affordances")
	}
}

func TestListPageClampsOutOfRange(t *testing.T) {
	list := make([]comment.Comment, 17)
	for i := range list {
		list[i].ID = "cmt_" + string(rune('a'+i))
	}
	fake := &fakeStore{
		listCommentsFn: func(context.Context, comment.SortKey) ([]comment.Comment, error) {
			return list, nil
		},
	}
	service := newTestService(fake, nil)

	page, err := service.ListPage(context.Background(), comment.SortLatest, 99)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if page.PageIndex != 2 || len(page.Items) != 1 {
		t.Errorf("got page %d with %d items", page.PageIndex, len(page.Items))
	}
	if page.HasNext || !page.HasPrev {
		t.Errorf("controls: hasPrev=%v hasNext=%v", page.HasPrev, page.HasNext)
	}
}
