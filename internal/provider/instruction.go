package provider

// Action tags shape the system instruction.
const (
	ActionGenericChat  = "generic_chat"
	ActionSummarize    = "summarize"
	ActionBulletPoints = "bullet_points"
	ActionDraftReply   = "draft_reply"
)

// BaseInstruction starts every system instruction.
const BaseInstruction = "You are a helpful AI assistant."

var actionSuffixes = map[string]string{
	ActionSummarize:    " Your task is to provide a concise summary of the user's input.",
	ActionBulletPoints: " Your task is to extract key points from the input and present them as a bulleted list.",
	ActionDraftReply:   " Your task is to draft a professional reply based on the context provided.",
}

// SystemInstruction returns the base instruction with the action's suffix
// appended. Unknown actions, generic_chat included, get no suffix.
func SystemInstruction(action string) string {
	return BaseInstruction + actionSuffixes[action]
}
