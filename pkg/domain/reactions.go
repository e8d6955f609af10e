package domain

// Reaction identifies a supported reaction kind. The string value is the
// stable ASCII storage key used in persisted reaction maps; raw emoji
// glyphs are not safe as map keys across encodings, so the glyph is
// display metadata only.
type Reaction string

const (
	ReactionThumbsUp  Reaction = "thumbs_up"
	ReactionHeart     Reaction = "heart"
	ReactionJoy       Reaction = "joy"
	ReactionSurprised Reaction = "surprised"
	ReactionSad       Reaction = "sad"
)

var reactionGlyphs = map[Reaction]string{
	ReactionThumbsUp:  "\U0001F44D",
	ReactionHeart:     "❤️",
	ReactionJoy:       "\U0001F602",
	ReactionSurprised: "\U0001F62E",
	ReactionSad:       "\U0001F622",
}

var reactionsByGlyph = func() map[string]Reaction {
	m := make(map[string]Reaction, len(reactionGlyphs))
	for r, glyph := range reactionGlyphs {
		m[glyph] = r
	}
	return m
}()

var allReactions = []Reaction{
	ReactionThumbsUp,
	ReactionHeart,
	ReactionJoy,
	ReactionSurprised,
	ReactionSad,
}

// AllReactions returns the supported kinds in stable display order.
func AllReactions() []Reaction {
	out := make([]Reaction, len(allReactions))
	copy(out, allReactions)
	return out
}

// Glyph returns the display emoji for the reaction, or "" when unknown.
func (r Reaction) Glyph() string {
	return reactionGlyphs[r]
}

// Valid reports whether the reaction is a supported kind.
func (r Reaction) Valid() bool {
	_, ok := reactionGlyphs[r]
	return ok
}

// ParseReaction maps either a glyph or a storage key to a Reaction.
func ParseReaction(raw string) (Reaction, bool) {
	if r, ok := reactionsByGlyph[raw]; ok {
		return r, true
	}
	r := Reaction(raw)
	if r.Valid() {
		return r, true
	}
	return "", false
}

// NormalizeReactions rebuilds a stored reaction map: keys are mapped to
// storage keys (unrecognized keys dropped), user-id lists deduplicated
// preserving order, and empty entries removed. The result is safe to
// write back wholesale.
func NormalizeReactions(raw map[string][]string) map[string][]string {
	normalized := make(map[string][]string, len(raw))
	for rawKey, userIDs := range raw {
		reaction, ok := ParseReaction(rawKey)
		if !ok {
			continue
		}
		deduped := dedupeStrings(userIDs)
		if len(deduped) == 0 {
			continue
		}
		key := string(reaction)
		// Merge in case a glyph key and its storage key coexist.
		normalized[key] = dedupeStrings(append(normalized[key], deduped...))
	}
	return normalized
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
