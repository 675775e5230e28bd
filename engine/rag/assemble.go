package rag

import (
	"fmt"
	"strings"

	"github.com/cyberlexi/engine/engine/retrieve"
	"github.com/cyberlexi/engine/engine/semantic"
)

// AssembleConfig controls how retrieved matches become prompt context.
type AssembleConfig struct {
	// QALabel and MomentLabel head their sections in the prompt.
	QALabel     string
	MomentLabel string
	// QAThreshold and MomentThreshold are exclusive similarity floors
	// a match must clear to be rendered.
	QAThreshold     float32
	MomentThreshold float32
}

// DefaultAssembleConfig returns the prompt-assembly defaults. Moments
// carry no extra floor beyond the search-time one; qa entries are
// re-filtered because a weak core-view match misleads more than a
// weak daily note.
func DefaultAssembleConfig() AssembleConfig {
	return AssembleConfig{
		QALabel:         "Core views and answers",
		MomentLabel:     "Daily notes",
		QAThreshold:     0.01,
		MomentThreshold: 0,
	}
}

// Build renders matches into a context block for the system prompt.
// The second return value is false when nothing cleared the thresholds,
// which callers treat as the no-context signal.
func Build(m retrieve.Matches, cfg AssembleConfig) (string, bool) {
	var sections []string

	if qa := buildQASection(m.QA, cfg); qa != "" {
		sections = append(sections, qa)
	}
	if moments := buildMomentSection(m.Moments, cfg); moments != "" {
		sections = append(sections, moments)
	}

	if len(sections) == 0 {
		return "", false
	}
	return strings.Join(sections, "\n\n"), true
}

func buildQASection(matches []semantic.Match, cfg AssembleConfig) string {
	var lines []string
	for _, m := range matches {
		if m.Similarity <= cfg.QAThreshold {
			continue
		}
		lines = append(lines, fmt.Sprintf("Q: %s\nA: %s", m.Question, m.Answer))
	}
	if len(lines) == 0 {
		return ""
	}
	return cfg.QALabel + ":\n" + strings.Join(lines, "\n\n")
}

func buildMomentSection(matches []semantic.Match, cfg AssembleConfig) string {
	var lines []string
	for _, m := range matches {
		if m.Similarity <= cfg.MomentThreshold {
			continue
		}
		line := m.Content
		if !m.CreatedAt.IsZero() {
			line = fmt.Sprintf("[%s] %s", m.CreatedAt.Format("2006/01/02"), m.Content)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return cfg.MomentLabel + ":\n" + strings.Join(lines, "\n\n")
}
