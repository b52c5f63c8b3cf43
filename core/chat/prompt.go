package chat

import (
	"fmt"
	"strings"

	"github.com/CognicAI/EduLearn-sub001/core"
)

const basePrompt = "You are EduLearn Assistant, an AI tutor built into the EduLearn learning management system. " +
	"Be accurate, encouraging and concise. Use Markdown for structure and code blocks for code. " +
	"If you do not know something, say so instead of guessing."

var (
	rolePrompts = map[string]string{
		"student": "You are talking to a student. Explain concepts step by step, check understanding with short questions " +
			"and guide them towards answers instead of simply giving solutions to graded work.",
		"teacher": "You are talking to a teacher. Help with lesson planning, assessment design, rubric writing " +
			"and differentiated instruction. Be practical and suggest ready to use material.",
		"admin": "You are talking to a school administrator. Help with course organisation, reporting " +
			"and platform usage. Keep answers brief and actionable.",
	}

	learningStylePrompts = map[string]string{
		"visual": "The user learns best visually: use diagrams described in text, tables, " +
			"bullet lists and spatial metaphors.",
		"auditory": "The user learns best by listening: write in a conversational tone, " +
			"use mnemonics and suggest reading explanations aloud.",
		"kinesthetic": "The user learns best by doing: favour hands-on exercises, " +
			"real world examples and small experiments.",
		"reading": "The user learns best through reading and writing: give well structured written explanations, " +
			"definitions and suggest note-taking.",
	}

	learningStyleAliases = map[string]string{
		"reading/writing": "reading",
		"reading-writing": "reading",
		"writing":         "reading",
		"hands-on":        "kinesthetic",
	}
)

// GenerateSystemPrompt builds the system prompt for a user, based on their role and learning style.
func GenerateSystemPrompt(profile UserProfile) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	role := core.CleanString(profile.Role, true /* lower */)
	role = strings.TrimSuffix(role, ":")
	if p, ok := rolePrompts[role]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(p)
	}

	style := core.CleanString(profile.LearningStyle, true /* lower */)
	if alias, ok := learningStyleAliases[style]; ok {
		style = alias
	}
	if p, ok := learningStylePrompts[style]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(p)
	}

	if name := core.CleanString(profile.Name); name != "" {
		sb.WriteString(fmt.Sprintf("\n\nThe user's name is %s.", name))
	}
	return sb.String()
}
