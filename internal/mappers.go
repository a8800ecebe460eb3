package internal

// Role and part-type mapping tables, one pair per adapter family. The tables
// are fixed for interoperability with historical data. Every mapper is total:
// unknown roles degrade to user, unknown part types to other.

// MapClaudeRole maps a Claude event type to a canonical role
func MapClaudeRole(native string) MessageRole {
	switch native {
	case "assistant":
		return RoleAssistant
	case "system", "progress":
		return RoleTool
	default:
		return RoleUser
	}
}

// MapClaudePartType maps a Claude content block type to a canonical part type
func MapClaudePartType(native string) PartType {
	switch native {
	case "text":
		return PartText
	case "thinking":
		return PartReasoning
	case "tool_use", "tool_result":
		return PartTool
	default:
		return PartOther
	}
}

// MapOpenCodeRole maps an OpenCode message role to a canonical role
func MapOpenCodeRole(native string) MessageRole {
	switch native {
	case "assistant":
		return RoleAssistant
	case "tool":
		return RoleTool
	default:
		return RoleUser
	}
}

// MapOpenCodePartType maps an OpenCode part type to a canonical part type
func MapOpenCodePartType(native string) PartType {
	switch native {
	case "text":
		return PartText
	case "reasoning":
		return PartReasoning
	case "tool":
		return PartTool
	case "step-start":
		return PartStepStart
	case "step-finish":
		return PartStepFinish
	case "error":
		return PartError
	default:
		return PartOther
	}
}
