// Package mention derives whether the assistant currently owes a thread a reply.
package mention

import (
	"strings"

	"llama-bot/types"
)

// Step folds one post into the owed state. The author check runs after the
// mention check, so an assistant post that also mentions the assistant still
// clears the obligation.
func Step(owed bool, post types.Post) bool {
	if strings.Contains(post.Text, types.MentionToken) {
		owed = true
	}
	if post.Author == types.AssistantName {
		owed = false
	}
	return owed
}

// IsReplyOwed reports whether the most recent relevant event in posts is an
// unanswered mention. Posts must be in chronological order.
func IsReplyOwed(posts []types.Post) bool {
	owed := false
	for _, p := range posts {
		owed = Step(owed, p)
	}
	return owed
}
