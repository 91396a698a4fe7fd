package actions

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Directive is appended to the system prompt when the structured protocol is on.
// It asks the model to declare what it did instead of relying on its phrasing.
const Directive = "Lorsque tu crées une tâche, un rappel ou un événement, termine ta réponse par un bloc\n" +
	"```actions\n" +
	`[{"type": "task", "operation": "create"}]` + "\n" +
	"```\n" +
	`Les types possibles sont "task", "reminder" et "calendar_event". N'ajoute pas ce bloc si tu n'as rien créé.`

var blockPattern = regexp.MustCompile("(?s)```actions[ \t]*\\n?(.*?)```")

// StructuredExtractor reads the intents the model declared in an actions block.
// Replies without a usable block go to Fallback.
type StructuredExtractor struct {
	Fallback Extractor
}

func NewStructuredExtractor(fallback Extractor) *StructuredExtractor {
	return &StructuredExtractor{Fallback: fallback}
}

func (e *StructuredExtractor) Extract(text string) []Intent {
	m := blockPattern.FindStringSubmatch(text)
	if m == nil {
		return e.fallback(text)
	}

	var declared []Intent
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &declared); err != nil {
		return e.fallback(e.Clean(text))
	}

	seen := make(map[Type]bool, len(declared))
	for _, in := range declared {
		if in.Type.Valid() && in.Operation == OperationCreate {
			seen[in.Type] = true
		}
	}
	intents := []Intent{}
	for _, t := range Types {
		if seen[t] {
			intents = append(intents, Intent{Type: t, Operation: OperationCreate})
		}
	}
	return intents
}

func (e *StructuredExtractor) fallback(text string) []Intent {
	if e.Fallback == nil {
		return []Intent{}
	}
	return e.Fallback.Extract(text)
}

// Clean removes every actions block from text.
func (e *StructuredExtractor) Clean(text string) string {
	return strings.TrimSpace(blockPattern.ReplaceAllString(text, ""))
}
