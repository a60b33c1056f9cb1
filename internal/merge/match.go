package merge

import (
	"strings"

	"github.com/jonathan/cv-tailor/internal/types"
)

// listRule describes how entities of one list section are identified and updated.
// E is the document entity type and P the matching patch type.
type listRule[E any, P any] struct {
	section types.SectionID

	// ids returns the entity's own id and its source (master) id.
	ids func(*E) (entityID, sourceEntityID string)
	ref func(*P) types.EntityRef

	// key returns the entity's natural key parts.
	key func(*E) []string
	// patchKey returns the patch's natural key parts, or false when the patch
	// does not carry every part.
	patchKey func(*P) ([]string, bool)

	apply func(*E, *P)
	// describe labels a patch entity in reports and logs.
	describe func(*P) string
}

// findMatch tries each strategy in priority order and returns the index of the first
// matching entity, or -1.
func findMatch[E any, P any](entities []E, patch *P, rule listRule[E, P]) (int, types.MergeStrategy) {
	ref := rule.ref(patch)

	if ref.EntityID != "" {
		for i := range entities {
			if id, _ := rule.ids(&entities[i]); id == ref.EntityID {
				return i, types.MatchEntityID
			}
		}
	}

	// A variant's entities point back at the master entity the model may have been shown.
	if ref.EntityID != "" || ref.SourceEntityID != "" {
		for i := range entities {
			_, source := rule.ids(&entities[i])
			if source == "" {
				continue
			}
			if source == ref.EntityID || source == ref.SourceEntityID {
				return i, types.MatchSourceEntityID
			}
		}
	}

	if want, ok := rule.patchKey(patch); ok {
		for i := range entities {
			if sameKey(rule.key(&entities[i]), want) {
				return i, types.MatchNaturalKey
			}
		}
	}

	return -1, ""
}

// sameKey compares natural keys ignoring case and surrounding whitespace.
func sameKey(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(strings.TrimSpace(a[i]), strings.TrimSpace(b[i])) {
			return false
		}
	}
	return true
}

// keyOf collects pointer key parts; every part must be present and non-blank.
func keyOf(parts ...*string) ([]string, bool) {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == nil || strings.TrimSpace(*p) == "" {
			return nil, false
		}
		out = append(out, *p)
	}
	return out, true
}

// set overwrites dst when the patch field is present.
func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func describeRef(ref types.EntityRef, label *string) string {
	switch {
	case ref.EntityID != "":
		return "entityId=" + ref.EntityID
	case ref.SourceEntityID != "":
		return "sourceEntityId=" + ref.SourceEntityID
	case label != nil:
		return *label
	default:
		return "(unidentified)"
	}
}
