package domain

import "testing"

func TestReactionStorageKeysRoundTrip(t *testing.T) {
	for _, reaction := range AllReactions() {
		glyph := reaction.Glyph()
		if glyph == "" {
			t.Fatalf("reaction %q has no glyph", reaction)
		}

		// Persisting the storage key and decoding must reproduce the glyph.
		stored := string(reaction)
		decoded, ok := ParseReaction(stored)
		if !ok {
			t.Fatalf("storage key %q did not parse", stored)
		}
		if decoded.Glyph() != glyph {
			t.Fatalf("round trip for %q: got glyph %q, want %q", reaction, decoded.Glyph(), glyph)
		}

		// The glyph itself must map back to the same kind.
		fromGlyph, ok := ParseReaction(glyph)
		if !ok || fromGlyph != reaction {
			t.Fatalf("glyph %q parsed to %q, want %q", glyph, fromGlyph, reaction)
		}
	}
}

func TestParseReactionRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "fire", "\U0001F525", "THUMBS_UP"} {
		if _, ok := ParseReaction(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestNormalizeReactionsCleansMap(t *testing.T) {
	raw := map[string][]string{
		"\U0001F44D":  {"u1", "u2", "u1"}, // glyph key, duplicate reactor
		"heart":       {"u3"},
		"fire":        {"u4"}, // unsupported, dropped
		"sad":         {},     // empty, dropped
		string(ReactionJoy): nil,
	}

	got := NormalizeReactions(raw)

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(got), got)
	}
	thumbs := got[string(ReactionThumbsUp)]
	if len(thumbs) != 2 || thumbs[0] != "u1" || thumbs[1] != "u2" {
		t.Fatalf("unexpected thumbs_up entry: %v", thumbs)
	}
	if len(got[string(ReactionHeart)]) != 1 {
		t.Fatalf("unexpected heart entry: %v", got[string(ReactionHeart)])
	}
}

func TestNormalizeReactionsMergesGlyphAndStorageKey(t *testing.T) {
	raw := map[string][]string{
		"❤️":    {"u1"},
		"heart": {"u1", "u2"},
	}

	got := NormalizeReactions(raw)

	merged := got[string(ReactionHeart)]
	if len(merged) != 2 {
		t.Fatalf("expected merged heart list of 2, got %v", merged)
	}
}
