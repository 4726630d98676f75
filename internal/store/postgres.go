package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"banter/api/internal/comment"
	"banter/api/internal/util"
)

// PostgresStore is the durable half of the remote collection: create,
// merge-update, equality query, and ordered snapshot reads over the
// comments and replies collections. Reactions live as a jsonb document
// on their target and are always overwritten whole; the revision column
// guards the overwrite with compare-and-swap.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// ErrRevisionConflict reports a lost reaction-overwrite race: the
// target's revision moved between read and write.
var ErrRevisionConflict = errors.New("revision conflict")

func (s *PostgresStore) EnsureUser(ctx context.Context, displayName, photoURL, passwordHash string) (User, error) {
	const findUser = `SELECT uid, display_name, photo_url, password_hash FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, displayName).Scan(&user.UID, &user.DisplayName, &user.PhotoURL, &user.PasswordHash)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	uid := util.NewID("usr")
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (uid, display_name, photo_url, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING uid, display_name, photo_url, password_hash
	`, uid, displayName, photoURL, passwordHash).Scan(&user.UID, &user.DisplayName, &user.PhotoURL, &user.PasswordHash); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUID(ctx context.Context, uid string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, display_name, photo_url, password_hash FROM users WHERE uid = $1
	`, uid).Scan(&user.UID, &user.DisplayName, &user.PhotoURL, &user.PasswordHash)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateComment writes a new comment. The store assigns both the id and
// createdAt; reactions start empty.
func (s *PostgresStore) CreateComment(ctx context.Context, item comment.Comment) (comment.Comment, error) {
	id := util.NewID("cmt")
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, uid, display_name, photo_url, content, image_url)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id, created_at
	`, id, item.UID, item.DisplayName, item.PhotoURL, item.Content, item.ImageURL).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return comment.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	item.Reactions = []comment.Reaction{}
	item.Replies = []string{}
	return item, nil
}

// CreateReply writes a new reply document. The id is caller-assigned;
// createdAt is store-assigned. The foreign key enforces that the parent
// comment exists at creation time.
func (s *PostgresStore) CreateReply(ctx context.Context, item comment.Reply) (comment.Reply, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO replies (id, comment_id, uid, display_name, photo_url, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, item.ID, item.CommentID, item.UID, item.DisplayName, item.PhotoURL, item.Content).Scan(&item.CreatedAt)
	if err != nil {
		return comment.Reply{}, fmt.Errorf("insert reply: %w", err)
	}
	item.Reactions = []comment.Reaction{}
	return item, nil
}

// AttachReplyRef appends the reply id to the parent's reply set and
// bumps repliesCount, in one statement. The append is set-union: an id
// already present neither duplicates nor increments.
func (s *PostgresStore) AttachReplyRef(ctx context.Context, commentID, replyID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET replies = CASE WHEN replies ? $2 THEN replies ELSE replies || to_jsonb($2::text) END,
		    replies_count = CASE WHEN replies ? $2 THEN replies_count ELSE replies_count + 1 END
		WHERE id = $1
	`, commentID, replyID)
	if err != nil {
		return false, fmt.Errorf("attach reply ref: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach reply ref rows: %w", err)
	}
	return affected > 0, nil
}

// OverwriteReactions replaces the target's whole reaction document and
// refreshes the denormalized reactionCount. The write only lands if the
// caller's revision still matches; otherwise ErrRevisionConflict.
func (s *PostgresStore) OverwriteReactions(ctx context.Context, kind comment.Kind, id string, reactions []comment.Reaction, expectedRevision int64) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(reactions)
	if err != nil {
		return 0, fmt.Errorf("marshal reactions: %w", err)
	}

	var revision int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET reactions = $2::jsonb, reaction_count = $3, revision = revision + 1
		WHERE id = $1 AND revision = $4
		RETURNING revision
	`, table), id, payload, len(reactions), expectedRevision).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if checkErr := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id=$1)`, table), id).Scan(&exists); checkErr != nil {
			return 0, fmt.Errorf("check target: %w", checkErr)
		}
		if exists {
			return 0, ErrRevisionConflict
		}
		return 0, sql.ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("overwrite reactions: %w", err)
	}
	return revision, nil
}

// GetTarget loads the reaction state of a comment or reply.
func (s *PostgresStore) GetTarget(ctx context.Context, kind comment.Kind, id string) ([]comment.Reaction, int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, 0, err
	}
	var raw []byte
	var revision int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT reactions, revision FROM %s WHERE id = $1
	`, table), id).Scan(&raw, &revision)
	if err != nil {
		return nil, 0, err
	}
	reactions, err := unmarshalReactions(raw)
	if err != nil {
		return nil, 0, err
	}
	return reactions, revision, nil
}

// ListCommentsOrdered returns the full comment collection ordered by
// the given sort key, descending. This is the snapshot the live view
// replaces its local list with on every change notification.
func (s *PostgresStore) ListCommentsOrdered(ctx context.Context, key comment.SortKey) ([]comment.Comment, error) {
	orderBy := "created_at DESC, id DESC"
	if key == comment.SortPopularity {
		orderBy = "reaction_count DESC, created_at DESC, id DESC"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, uid, display_name, photo_url, content, COALESCE(image_url, ''), created_at,
		       reactions, replies, replies_count, reaction_count, revision
		FROM comments
		ORDER BY %s
	`, orderBy))
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]comment.Comment, 0)
	for rows.Next() {
		var item comment.Comment
		var rawReactions, rawReplies []byte
		if err := rows.Scan(
			&item.ID,
			&item.UID,
			&item.DisplayName,
			&item.PhotoURL,
			&item.Content,
			&item.ImageURL,
			&item.CreatedAt,
			&rawReactions,
			&rawReplies,
			&item.RepliesCount,
			&item.ReactionCount,
			&item.Revision,
		); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		item.Reactions, err = unmarshalReactions(rawReactions)
		if err != nil {
			return nil, err
		}
		item.Replies, err = unmarshalReplyRefs(rawReplies)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// RepliesByComment is the lazy equality query behind thread expansion.
// No ordering is guaranteed beyond what the index happens to give; the
// assembler orders for display.
func (s *PostgresStore) RepliesByComment(ctx context.Context, commentID string) ([]comment.Reply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, comment_id, uid, display_name, photo_url, content, created_at,
		       reactions, reaction_count, revision
		FROM replies
		WHERE comment_id = $1
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	items := make([]comment.Reply, 0)
	for rows.Next() {
		var item comment.Reply
		var rawReactions []byte
		if err := rows.Scan(
			&item.ID,
			&item.CommentID,
			&item.UID,
			&item.DisplayName,
			&item.PhotoURL,
			&item.Content,
			&item.CreatedAt,
			&rawReactions,
			&item.ReactionCount,
			&item.Revision,
		); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		item.Reactions, err = unmarshalReactions(rawReactions)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func tableFor(kind comment.Kind) (string, error) {
	switch kind {
	case comment.KindComment:
		return "comments", nil
	case comment.KindReply:
		return "replies", nil
	default:
		return "", fmt.Errorf("unknown target kind %q", kind)
	}
}

func unmarshalReplyRefs(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	refs := make([]string, 0)
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, fmt.Errorf("unmarshal reply refs: %w", err)
	}
	return refs, nil
}

func unmarshalReactions(raw []byte) ([]comment.Reaction, error) {
	if len(raw) == 0 {
		return []comment.Reaction{}, nil
	}
	reactions := make([]comment.Reaction, 0)
	if err := json.Unmarshal(raw, &reactions); err != nil {
		return nil, fmt.Errorf("unmarshal reactions: %w", err)
	}
	return reactions, nil
}
