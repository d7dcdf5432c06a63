package parser

import (
	"fmt"
	"strings"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ParseSpreadsheet reads cards from the first sheet of an .xlsx workbook.
// Column A is the front, B the back and C the optional context. The first
// row is a header and is skipped, as are rows with an empty front.
func ParseSpreadsheet(path string) ([]domain.Card, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	var cards []domain.Card
	for i, row := range rows {
		if i == 0 {
			continue
		}
		card := domain.Card{
			Front:   cell(row, 0),
			Back:    cell(row, 1),
			Context: cell(row, 2),
		}
		if card.Front == "" {
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
