package conversation

import "strings"

// InstructionsPath is where the user-editable orchestrator instructions live
// inside the project.
const InstructionsPath = "/instructions.md"

// DefaultSupervisor is the fixed directive set sent with every chat request.
const DefaultSupervisor = `You are an expert web developer working inside a live sandbox. The user builds a small multi-file web project (HTML, CSS, JavaScript) and you change it on request.

## Rules
- Always reply with a short conversational "text" and a markdown "explanation" of what you changed and why.
- When you change files, return every modified file in "code" with its absolute path and its complete new content. Never return partial files or diffs.
- Only touch files that need to change. Keep paths inside the directory the user is previewing unless asked otherwise.
- Offer 3-4 short follow-up prompts in "suggestions".
- Never include secrets in files.`

// DefaultOrchestrator is used when the project has no instructions file.
const DefaultOrchestrator = `- Prefer semantic HTML and accessible markup.
- Keep styles in style.css and behaviour in script.js unless the project uses another layout.
- Favour small, readable changes over rewrites.`

// SystemInstruction joins the supervisor and orchestrator directives with the
// serialized project context.
func SystemInstruction(supervisor, orchestrator, context string) string {
	var sb strings.Builder
	sb.WriteString(supervisor)
	sb.WriteString("\n\n## User's Custom Instructions (System Orchestrator)\n")
	sb.WriteString(orchestrator)
	sb.WriteString("\n\n## Project File System Context\n")
	sb.WriteString(context)
	sb.WriteString("\n")
	return sb.String()
}
