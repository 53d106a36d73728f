// Package conversation builds the message sequence sent to the LLM.
package conversation

import (
	"fmt"

	"llama-bot/types"
)

const personaTemplate = "You are an assistant chatbot in a forum. Your name is %s. " +
	"The users will mention you with \"%s\". " +
	"You should pay closer attention to the responses posted by experts in the \"%s\" group. " +
	"Don't mention anyone in your reply. " +
	"The discussion title is %s"

// Persona returns the system instruction for a thread title.
func Persona(title string) string {
	return fmt.Sprintf(personaTemplate, types.AssistantName, types.MentionToken, types.ExpertGroup, title)
}

// Turn formats a post as a user turn.
func Turn(p types.Post) types.Message {
	return types.Message{
		Role:    types.RoleUser,
		Content: fmt.Sprintf("%s (in group %s): %s", p.Author, p.Group, p.Text),
	}
}

// Assemble builds the persona followed by one user turn per post, in order.
// It does not truncate; bounding the input is left to the LLM backend.
func Assemble(title string, posts []types.Post) types.Conversation {
	turns := make([]types.Message, 0, len(posts))
	for _, p := range posts {
		turns = append(turns, Turn(p))
	}
	return types.Conversation{
		System: types.Message{Role: types.RoleSystem, Content: Persona(title)},
		Turns:  turns,
	}
}
