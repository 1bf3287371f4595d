package room

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// Candidate is an agent eligible to answer a human utterance.
type Candidate struct {
	ID        string
	Name      string
	Listening bool
}

// SelectionStrategy picks which agent, if any, responds to a transcript.
// Implementations must be safe for concurrent use.
type SelectionStrategy interface {
	Select(text string, candidates []Candidate) (agentID string, ok bool)
}

// RandomStrategy picks uniformly among listening candidates.
type RandomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomStrategy creates a strategy seeded from the given source. A zero
// seed uses a fixed default, which is fine for production selection and keeps
// tests deterministic.
func NewRandomStrategy(seed int64) *RandomStrategy {
	if seed == 0 {
		seed = 1
	}
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomStrategy) Select(_ string, candidates []Candidate) (string, bool) {
	eligible := listening(candidates)
	if len(eligible) == 0 {
		return "", false
	}
	s.mu.Lock()
	pick := eligible[s.rng.Intn(len(eligible))]
	s.mu.Unlock()
	return pick.ID, true
}

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// AddressedStrategy prefers the agent the speaker addressed by name, matching
// transcript tokens against agent names phonetically and fuzzily. Speech
// recognizers mangle proper names, so exact string comparison is useless
// here; Double Metaphone catches "nia" heard as "near" and Jaro-Winkler
// ranks the survivors. When nothing in the utterance names an agent the
// strategy defers to Fallback.
type AddressedStrategy struct {
	// PhoneticThreshold and FuzzyThreshold override the defaults when > 0.
	PhoneticThreshold float64
	FuzzyThreshold    float64

	// Fallback handles utterances that address nobody. Nil means no reply.
	Fallback SelectionStrategy
}

func (s *AddressedStrategy) Select(text string, candidates []Candidate) (string, bool) {
	eligible := listening(candidates)
	if len(eligible) == 0 {
		return "", false
	}

	phonetic := s.PhoneticThreshold
	if phonetic <= 0 {
		phonetic = defaultPhoneticThreshold
	}
	fuzzy := s.FuzzyThreshold
	if fuzzy <= 0 {
		fuzzy = defaultFuzzyThreshold
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return s.fallback(text, candidates)
	}

	bestID := ""
	bestScore := 0.0
	for _, c := range eligible {
		score, matched := nameScore(tokens, c.Name, phonetic, fuzzy)
		if matched && score > bestScore {
			bestID = c.ID
			bestScore = score
		}
	}
	if bestID != "" {
		return bestID, true
	}
	return s.fallback(text, candidates)
}

func (s *AddressedStrategy) fallback(text string, candidates []Candidate) (string, bool) {
	if s.Fallback == nil {
		return "", false
	}
	return s.Fallback.Select(text, candidates)
}

// nameScore reports how strongly the utterance tokens address the given
// name. A token pair counts when its Double Metaphone code sets overlap or
// its Jaro-Winkler similarity clears the fuzzy threshold; the returned score
// is the best similarity among counted pairs.
func nameScore(tokens []string, name string, phonetic, fuzzy float64) (float64, bool) {
	nameTokens := tokenize(name)
	if len(nameTokens) == 0 {
		return 0, false
	}

	best := 0.0
	matched := false
	for _, nt := range nameTokens {
		ntCodes := metaphoneCodes(nt)
		for _, tok := range tokens {
			sim := matchr.JaroWinkler(tok, nt, false)
			hit := sim >= fuzzy
			if !hit && sim >= phonetic && codesOverlap(metaphoneCodes(tok), ntCodes) {
				hit = true
			}
			if hit {
				matched = true
				if sim > best {
					best = sim
				}
			}
		}
	}
	return best, matched
}

func metaphoneCodes(s string) [2]string {
	primary, secondary := matchr.DoubleMetaphone(s)
	return [2]string{primary, secondary}
}

func codesOverlap(a, b [2]string) bool {
	for _, ca := range a {
		if ca == "" {
			continue
		}
		for _, cb := range b {
			if cb != "" && ca == cb {
				return true
			}
		}
	}
	return false
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func listening(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Listening {
			out = append(out, c)
		}
	}
	return out
}
