// Package alsa enumerates sound cards and drives mixer controls through alsa-utils.
package alsa

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/justinbetabox/robot-hat/internal/sysexec"
)

// Card is one enumerated sound card. Index is -1 when the card is referenced only by ID.
type Card struct {
	Index int
	ID    string
	Name  string
}

// Valid reports whether c names a card. The zero Card names none; an index-only
// reference must be positive since every enumerated card carries an ID.
func (c Card) Valid() bool {
	return c.ID != "" || c.Index > 0
}

// Ref returns the string ALSA accepts after "card": the stable ID when known.
// It is empty for a card that is not Valid.
func (c Card) Ref() string {
	if c.ID != "" {
		return c.ID
	}
	if !c.Valid() {
		return ""
	}
	return strconv.Itoa(c.Index)
}

// Matches reports whether any non-empty term is a case-insensitive substring of ID or Name.
func (c Card) Matches(terms ...string) bool {
	id := strings.ToLower(c.ID)
	name := strings.ToLower(c.Name)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.Contains(id, term) || strings.Contains(name, term) {
			return true
		}
	}
	return false
}

// Lister returns the currently enumerated sound cards.
type Lister interface {
	Cards(ctx context.Context) ([]Card, error)
}

// CommandLister parses `aplay -l` style output.
type CommandLister struct {
	Runner sysexec.Runner
	Argv   []string
}

func (l CommandLister) Cards(ctx context.Context) ([]Card, error) {
	out, err := l.Runner.Run(ctx, l.Argv...)
	if err != nil {
		return nil, err
	}
	return ParseCardList(string(out)), nil
}

var cardLine = regexp.MustCompile(`^card (\d+): (\S+) \[([^\]]*)\]`)

// ParseCardList extracts one Card per card index, in listing order.
// Input lines look like "card 1: sndrpihifiberry [snd_rpi_hifiberry_dac], device 0: ...".
func ParseCardList(output string) []Card {
	var cards []Card
	seen := make(map[int]struct{})

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := cardLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, dup := seen[index]; dup {
			continue
		}
		seen[index] = struct{}{}
		cards = append(cards, Card{Index: index, ID: m[2], Name: strings.TrimSpace(m[3])})
	}
	return cards
}

// Find returns the first card matching any of the terms.
func Find(cards []Card, terms ...string) (Card, bool) {
	for _, card := range cards {
		if card.Matches(terms...) {
			return card, true
		}
	}
	return Card{}, false
}
