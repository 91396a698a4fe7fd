package actions

import "strings"

// Rule maps an intent type to the phrases that announce it. Matching is a
// case-sensitive substring search.
type Rule struct {
	Type    Type
	Markers []string
}

// DefaultRules are the French phrasings the assistant uses when it confirms an
// action.
func DefaultRules() []Rule {
	return []Rule{
		{Type: TypeTask, Markers: []string{"J'ai créé une tâche", "J'ai ajouté une tâche"}},
		{Type: TypeReminder, Markers: []string{"J'ai programmé un rappel", "Je te rappellerai"}},
		{Type: TypeCalendarEvent, Markers: []string{"J'ai ajouté un événement", "J'ai créé un rendez-vous"}},
	}
}

type PhraseExtractor struct {
	rules []Rule
}

// NewPhraseExtractor uses DefaultRules when no rule is given. Rules are checked in
// the order provided and each yields at most one intent.
func NewPhraseExtractor(rules ...Rule) *PhraseExtractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &PhraseExtractor{rules: rules}
}

func (e *PhraseExtractor) Extract(text string) []Intent {
	intents := []Intent{}
	for _, r := range e.rules {
		for _, m := range r.Markers {
			if m != "" && strings.Contains(text, m) {
				intents = append(intents, Intent{Type: r.Type, Operation: OperationCreate})
				break
			}
		}
	}
	return intents
}
