package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/devyk100/memoriva/internal/domain"
)

const separator = "---"

// Each card is a "Q:" block, optionally followed by "A:" and "C:" blocks.
// A block runs until the next prefix, a "---" line or the end of input.
var prefixes = []struct {
	prefix string
	field  func(*domain.Card) *string
}{
	{"Q:", func(c *domain.Card) *string { return &c.Front }},
	{"A:", func(c *domain.Card) *string { return &c.Back }},
	{"C:", func(c *domain.Card) *string { return &c.Context }},
}

type markdownParser struct {
	cards   []domain.Card
	current domain.Card
	field   *string
	block   []string
}

// flush stores the lines read so far into the field being read.
func (p *markdownParser) flush() {
	if p.field != nil && len(p.block) > 0 {
		*p.field = strings.TrimRight(strings.Join(p.block, "\n"), "\n")
	}
	p.block = nil
}

func (p *markdownParser) finishCard() {
	p.flush()
	if p.current.Front != "" {
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Card{}
	p.field = nil
}

func (p *markdownParser) line(line string) {
	if line == separator {
		p.finishCard()
		return
	}

	for i, pf := range prefixes {
		if !strings.HasPrefix(line, pf.prefix) {
			continue
		}
		// A new question always starts a new card.
		if i == 0 && p.field != nil {
			p.finishCard()
		}
		p.flush()
		p.field = pf.field(&p.current)
		p.block = append(p.block, strings.TrimPrefix(line[len(pf.prefix):], " "))
		return
	}

	if p.field != nil {
		p.block = append(p.block, line)
	}
}

// ParseMarkdown reads Q:/A:/C: blocks from r.
func ParseMarkdown(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	p := &markdownParser{}
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	p.finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.cards, nil
}
