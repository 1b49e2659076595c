package discussion

import "fmt"

const (
	greetingInstruction = "You are a friendly, concise, and helpful AI chat assistant. Welcome the user to the chat based on their chosen genre. Keep your greeting very short."

	suggestionsInstruction = "You are a discussion facilitator. Generate exactly 10 unique, thought-provoking questions or interesting facts related to the discussion area. Present them as a numbered list. Be insightful."
)

func greetingPrompt(genre string) string {
	return fmt.Sprintf("I want to chat about the genre: \"%s\". Give me a short welcome message.", genre)
}

func chatInstruction(area string) string {
	return fmt.Sprintf("You are an excellent discussion facilitator and AI participant for the area: \"%s\". Keep your responses concise, insightful, and friendly. Do not repeat previous points.", area)
}

func suggestionsPrompt(area string, isNewSet bool) string {
	if isNewSet {
		return fmt.Sprintf("The current topic is: \"%s\". Generate a completely new and distinct set of 10 discussion questions or facts.", area)
	}
	return fmt.Sprintf("The current topic is: \"%s\". Generate 10 discussion questions or facts now.", area)
}

func suggestionsHeader(area string) string {
	return fmt.Sprintf("--- **Discussion Suggestions for %s** ---\n\n", area)
}

// DeletePrompt is the confirmation question shown before a delete.
func DeletePrompt(area string) string {
	return fmt.Sprintf("Are you sure you want to permanently delete the discussion on \"%s\"? This cannot be undone.", area)
}
