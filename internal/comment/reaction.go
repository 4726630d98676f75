package comment

// Palette is the emoji set the widget offers. The write path rejects
// anything outside it.
var Palette = []string{"👍", "❤️", "😂", "🎉", "😢", "😡"}

// InPalette reports whether emoji is one the widget offers.
func InPalette(emoji string) bool {
	for _, allowed := range Palette {
		if allowed == emoji {
			return true
		}
	}
	return false
}

// ApplyReaction merges one user's reaction into a reaction list under
// one-reaction-per-user semantics and returns the updated list.
//
// No existing record for the user: append {emoji, 1, userID}.
// Existing record with the same emoji: no-op, changed is false and the
// caller must not issue a write.
// Existing record with a different emoji: the record's emoji is
// replaced in place, preserving list position.
//
// The input list is never mutated.
func ApplyReaction(list []Reaction, userID, emoji string) (updated []Reaction, changed bool) {
	for i, existing := range list {
		if existing.UserID != userID {
			continue
		}
		if existing.Emoji == emoji {
			return list, false
		}
		updated = make([]Reaction, len(list))
		copy(updated, list)
		updated[i].Emoji = emoji
		return updated, true
	}
	updated = make([]Reaction, len(list), len(list)+1)
	copy(updated, list)
	updated = append(updated, Reaction{Emoji: emoji, Count: 1, UserID: userID})
	return updated, true
}

// EmojiCount is one aggregated display entry.
type EmojiCount struct {
	Emoji string `json:"emoji"`
	Total int    `json:"total"`
}

// AggregateReactions groups a reaction list by emoji, summing counts,
// and returns (emoji, total) pairs in first-seen order.
func AggregateReactions(list []Reaction) []EmojiCount {
	totals := make([]EmojiCount, 0, len(list))
	index := make(map[string]int, len(list))
	for _, reaction := range list {
		if at, seen := index[reaction.Emoji]; seen {
			totals[at].Total += reaction.Count
			continue
		}
		index[reaction.Emoji] = len(totals)
		totals = append(totals, EmojiCount{Emoji: reaction.Emoji, Total: reaction.Count})
	}
	return totals
}

// ActiveEmoji returns the acting user's current emoji on the target, if
// any. The picker shows it as the active glyph, else a placeholder.
func ActiveEmoji(list []Reaction, userID string) (string, bool) {
	for _, reaction := range list {
		if reaction.UserID == userID {
			return reaction.Emoji, true
		}
	}
	return "", false
}
