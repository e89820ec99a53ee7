// Package comb recognizes poker-style combinations over small card sets
// (1 to 5 cards) and orders them by strength.
package comb

import (
	"errors"
	"sort"

	"github.com/lox/pokerdurak/internal/deck"
)

// Kind tags which of the nine combination categories a CombRank belongs to.
// The iota order is the ascending strength order fixed by the rules:
// HighestCard < Pair < TwoPairs < Set < Straight < Flush < FullHouse <
// FourOfAKind < StraightFlush.
type Kind int

const (
	KindHighestCard Kind = iota
	KindPair
	KindTwoPairs
	KindSet
	KindStraight
	KindFlush
	KindFullHouse
	KindFourOfAKind
	KindStraightFlush
)

// ErrWrongSize is returned when the card set's cardinality matches no
// recogniser.
var ErrWrongSize = errors.New("comb: no recogniser applies to this card count")

// CombRank is a totally ordered, tagged combination rank. Only the fields
// relevant to Kind are meaningful:
//   - KindHighestCard, KindPair, KindSet, KindStraight, KindFourOfAKind: A
//   - KindTwoPairs, KindFullHouse: A (the higher/triple rank), B (the lower/pair rank)
//   - KindFlush: Ranks, the 5 card ranks sorted high-to-low
type CombRank struct {
	Kind  Kind
	A, B  deck.Rank
	Ranks []deck.Rank
}

// Compare returns -1, 0, or 1 as r is less than, equal to, or greater than
// other, implementing the strict total order over CombRank values.
func (r CombRank) Compare(other CombRank) int {
	if r.Kind != other.Kind {
		if r.Kind < other.Kind {
			return -1
		}
		return 1
	}
	switch r.Kind {
	case KindTwoPairs, KindFullHouse:
		if c := cmpRank(r.A, other.A); c != 0 {
			return c
		}
		return cmpRank(r.B, other.B)
	case KindFlush:
		for i := range r.Ranks {
			if c := cmpRank(r.Ranks[i], other.Ranks[i]); c != 0 {
				return c
			}
		}
		return 0
	default:
		return cmpRank(r.A, other.A)
	}
}

func cmpRank(a, b deck.Rank) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether r is strictly weaker than other.
func (r CombRank) Less(other CombRank) bool { return r.Compare(other) < 0 }

// Combination is a recognised, read-only card set together with its rank.
type Combination struct {
	Cards []deck.Card
	Rank  CombRank
}

// Equal reports whether two combinations have the same rank. Per the rules,
// combination equality is rank equality; the underlying card sets are not
// compared.
func (c Combination) Equal(other Combination) bool {
	return c.Rank.Compare(other.Rank) == 0
}

// Recognize classifies cards into a ranked combination, trying recognisers
// in strict priority order (strongest category first) and returning the
// first that matches. It fails if no recogniser accepts the cardinality or
// the cards do not form a valid instance of any matching category.
func Recognize(cards []deck.Card) (Combination, error) {
	n := len(cards)
	if n < 1 || n > 5 {
		return Combination{}, ErrWrongSize
	}

	counts := rankCounts(cards)

	if n == 5 {
		if top, ok := straightFlushTop(cards); ok {
			return comb(cards, CombRank{Kind: KindStraightFlush, A: top}), nil
		}
	}
	if n == 4 || n == 5 {
		if r, ok := highestCountRank(counts, 4); ok {
			return comb(cards, CombRank{Kind: KindFourOfAKind, A: r}), nil
		}
	}
	if n == 5 {
		if triple, pair, ok := fullHouseRanks(counts); ok {
			return comb(cards, CombRank{Kind: KindFullHouse, A: triple, B: pair}), nil
		}
		if ranks, ok := flushRanks(cards); ok {
			return comb(cards, CombRank{Kind: KindFlush, Ranks: ranks}), nil
		}
		if top, ok := straightTop(cards); ok {
			return comb(cards, CombRank{Kind: KindStraight, A: top}), nil
		}
	}
	if n == 3 {
		if r, ok := highestCountRank(counts, 3); ok {
			return comb(cards, CombRank{Kind: KindSet, A: r}), nil
		}
	}
	if n == 4 {
		if hi, lo, ok := twoPairsRanks(counts); ok {
			return comb(cards, CombRank{Kind: KindTwoPairs, A: hi, B: lo}), nil
		}
	}
	if n == 2 {
		if r, ok := highestCountRank(counts, 2); ok {
			return comb(cards, CombRank{Kind: KindPair, A: r}), nil
		}
	}
	if n == 1 {
		return comb(cards, CombRank{Kind: KindHighestCard, A: cards[0].Rank}), nil
	}

	return Combination{}, errors.New("comb: cards do not form a recognised combination")
}

func comb(cards []deck.Card, rank CombRank) Combination {
	out := make([]deck.Card, len(cards))
	copy(out, cards)
	return Combination{Cards: out, Rank: rank}
}

func rankCounts(cards []deck.Card) map[deck.Rank]int {
	counts := make(map[deck.Rank]int, len(cards))
	for _, c := range cards {
		counts[c.Rank]++
	}
	return counts
}

// highestCountRank returns the highest rank whose count is at least x.
func highestCountRank(counts map[deck.Rank]int, x int) (deck.Rank, bool) {
	best := deck.Rank(0)
	found := false
	for r, c := range counts {
		if c >= x && (!found || r > best) {
			best, found = r, true
		}
	}
	return best, found
}

// fullHouseRanks splits a 5-card set into its triple and pair ranks. With
// exactly five cards the split is unambiguous: one rank must have count 3
// and the remaining two cards must share a distinct rank.
func fullHouseRanks(counts map[deck.Rank]int) (triple, pair deck.Rank, ok bool) {
	var triples, pairs []deck.Rank
	for r, c := range counts {
		switch c {
		case 3:
			triples = append(triples, r)
		case 2:
			pairs = append(pairs, r)
		}
	}
	if len(triples) == 1 && len(pairs) == 1 {
		return triples[0], pairs[0], true
	}
	return 0, 0, false
}

// twoPairsRanks splits a 4-card set into its two pair ranks, higher first.
func twoPairsRanks(counts map[deck.Rank]int) (hi, lo deck.Rank, ok bool) {
	var pairs []deck.Rank
	for r, c := range counts {
		if c == 2 {
			pairs = append(pairs, r)
		}
	}
	if len(pairs) != 2 {
		return 0, 0, false
	}
	if pairs[0] < pairs[1] {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	return pairs[0], pairs[1], true
}

func flushRanks(cards []deck.Card) ([]deck.Rank, bool) {
	suit := cards[0].Suit
	for _, c := range cards[1:] {
		if c.Suit != suit {
			return nil, false
		}
	}
	out := make([]deck.Rank, len(cards))
	for i, c := range cards {
		out[i] = c.Rank
	}
	sort.Sort(sort.Reverse(rankSlice(out)))
	return out, true
}

type rankSlice []deck.Rank

func (s rankSlice) Len() int           { return len(s) }
func (s rankSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s rankSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// straightRankWindow builds a presence bitmap indexed by rank value (2..14),
// duplicating the Ace bit at index 1 so the wheel (A-2-3-4-5) is found as a
// normal run of five consecutive bits, and returns the top rank of the
// highest five-in-a-row window, scanning from the highest window down so an
// Ace-high straight is preferred over the wheel when both are present
// (impossible with exactly 5 distinct ranks, but keeps the scan well defined).
func straightRankWindow(present [15]bool) (deck.Rank, bool) {
	for start := 10; start >= 1; start-- {
		ok := true
		for i := 0; i < 5; i++ {
			if !present[start+i] {
				ok = false
				break
			}
		}
		if ok {
			return deck.Rank(start + 4), true
		}
	}
	return 0, false
}

func straightTop(cards []deck.Card) (deck.Rank, bool) {
	var present [15]bool
	for _, c := range cards {
		present[int(c.Rank)] = true
		if c.Rank == deck.Ace {
			present[1] = true
		}
	}
	return straightRankWindow(present)
}

func straightFlushTop(cards []deck.Card) (deck.Rank, bool) {
	suit := cards[0].Suit
	for _, c := range cards[1:] {
		if c.Suit != suit {
			return 0, false
		}
	}
	return straightTop(cards)
}
