package reconcile

import (
	"strings"
	"unicode"

	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// OffsetLeg names which part of the book a volume slice is taken from.
type OffsetLeg string

const (
	// LegToday closes lots opened today.
	LegToday OffsetLeg = "today"
	// LegHistory closes lots carried over from earlier sessions.
	LegHistory OffsetLeg = "history"
	// LegOpen opens new lots.
	LegOpen OffsetLeg = "open"
)

// DefaultOffsetPriority closes today's lots, then history, and opens only
// after both closes have finished.
const DefaultOffsetPriority = "今昨,开"

// OffsetPriority is an ordered list of leg groups. All legs of a group are
// submitted together; a group starts only after the orders of the previous
// group are finished.
type OffsetPriority [][]OffsetLeg

var legAliases = map[string]OffsetLeg{
	"今":         LegToday,
	"today":     LegToday,
	"昨":         LegHistory,
	"history":   LegHistory,
	"yesterday": LegHistory,
	"开":         LegOpen,
	"open":      LegOpen,
}

// ParseOffsetPriority parses the priority grammar. Groups are separated by
// commas. Inside a group legs are either single characters (今 昨 开) or
// English words separated by spaces or '+', e.g. "today+history,open".
func ParseOffsetPriority(s string) (OffsetPriority, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New(errors.ErrCodeInvalidOffsetPriority, "offset priority is empty")
	}

	seen := map[OffsetLeg]bool{}
	priority := OffsetPriority{}

	for _, raw := range strings.Split(s, ",") {
		tokens, err := tokenizeGroup(raw)
		if err != nil {
			return nil, err
		}

		if len(tokens) == 0 {
			return nil, errors.Newf(errors.ErrCodeInvalidOffsetPriority, "offset priority %q has an empty group", s)
		}

		group := make([]OffsetLeg, 0, len(tokens))

		for _, token := range tokens {
			leg, ok := legAliases[strings.ToLower(token)]
			if !ok {
				return nil, errors.Newf(errors.ErrCodeInvalidOffsetPriority, "unknown offset %q in %q", token, s)
			}

			if seen[leg] {
				return nil, errors.Newf(errors.ErrCodeInvalidOffsetPriority, "offset %q repeated in %q", leg, s)
			}

			seen[leg] = true
			group = append(group, leg)
		}

		priority = append(priority, group)
	}

	return priority, nil
}

func tokenizeGroup(group string) ([]string, error) {
	fields := strings.FieldsFunc(group, func(r rune) bool {
		return unicode.IsSpace(r) || r == '+' || r == '|'
	})

	tokens := []string{}

	for _, field := range fields {
		if isASCIIWord(field) {
			tokens = append(tokens, field)

			continue
		}

		// single character legs may be written back to back
		for _, r := range field {
			if r <= unicode.MaxASCII {
				return nil, errors.Newf(errors.ErrCodeInvalidOffsetPriority, "cannot mix characters and words in %q", field)
			}

			tokens = append(tokens, string(r))
		}
	}

	return tokens, nil
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}

	return true
}

// String renders the priority in the English form.
func (p OffsetPriority) String() string {
	groups := make([]string, len(p))
	for i, group := range p {
		legs := make([]string, len(group))
		for j, leg := range group {
			legs[j] = string(leg)
		}

		groups[i] = strings.Join(legs, "+")
	}

	return strings.Join(groups, ",")
}
