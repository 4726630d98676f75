package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"banter/api/internal/comment"
	"banter/api/internal/identity"
)

type fakeIdentity struct {
	currentFn func(context.Context, string) (identity.UserRecord, error)
}

func (f *fakeIdentity) SignIn(context.Context, string, string, string) (identity.Session, error) {
	return identity.Session{}, identity.ErrSignInFailed
}
func (f *fakeIdentity) Current(ctx context.Context, token string) (identity.UserRecord, error) {
	if f.currentFn != nil {
		return f.currentFn(ctx, token)
	}
	return identity.UserRecord{}, identity.ErrUnauthenticated
}
func (f *fakeIdentity) Refresh(context.Context, string) (identity.Session, error) {
	return identity.Session{}, identity.ErrUnauthenticated
}
func (f *fakeIdentity) SignOut(context.Context, string) {}

func newTestServer(fake *fakeStore, ids *fakeIdentity) *httptest.Server {
	service := newTestService(fake, &fakeBus{})
	service.identity = ids
	return httptest.NewServer(NewHTTPServer(service, "*").Handler())
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeIdentity{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d", resp.StatusCode)
	}
}

func TestListCommentsEndpoint(t *testing.T) {
	list := make([]comment.Comment, 10)
	for i := range list {
		list[i].ID = "cmt_" + string(rune('a'+i))
		list[i].Reactions = []comment.Reaction{}
		list[i].Replies = []string{}
	}
	fake := &fakeStore{
		listCommentsFn: func(_ context.Context, key comment.SortKey) ([]comment.Comment, error) {
			if key != comment.SortPopularity {
				t.Errorf("expected popularity sort, got %q", key)
			}
			return list, nil
		},
	}
	server := newTestServer(fake, &fakeIdentity{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/comments?sort=popularity&page=1")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Items        []comment.Comment `json:"items"`
		Page         int               `json:"page"`
		TotalPages   int               `json:"totalPages"`
		HasPrev      bool              `json:"hasPrev"`
		ShowControls bool              `json:"showControls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Items) != 2 || body.Page != 1 || body.TotalPages != 2 {
		t.Errorf("unexpected page: %+v", body)
	}
	if !body.HasPrev || !body.ShowControls {
		t.Errorf("controls: %+v", body)
	}
}

func TestPostCommentRequiresAuth(t *testing.T) {
	server := newTestServer(&fakeStore{}, &fakeIdentity{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/comments", "application/json", strings.NewReader(`{"content":"hi"}`))
	if err != nil {
		t.Fatalf("post request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated post returned %d, want 401", resp.StatusCode)
	}
}

func TestReactEndpoint(t *testing.T) {
	ids := &fakeIdentity{
		currentFn: func(_ context.Context, token string) (identity.UserRecord, error) {
			if token != "good-token" {
				return identity.UserRecord{}, identity.ErrUnauthenticated
			}
			return testUser, nil
		},
	}
	fake := &fakeStore{
		getTargetFn: func(_ context.Context, kind comment.Kind, id string) ([]comment.Reaction, int64, error) {
			if kind != comment.KindReply || id != "rpl_1" {
				t.Errorf("unexpected target %s/%s", kind, id)
			}
			return []comment.Reaction{}, 1, nil
		},
	}
	server := newTestServer(fake, ids)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/replies/rpl_1/reactions", strings.NewReader(`{"emoji":"🎉"}`))
	req.Header.Set("Authorization", "Bearer good-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("react request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("react returned %d", resp.StatusCode)
	}

	var state ReactionState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if state.ActiveEmoji != "🎉" || len(state.Totals) != 1 || state.Totals[0].Total != 1 {
		t.Errorf("unexpected state: %+v", state)
	}
}
