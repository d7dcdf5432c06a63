// Package parser extracts flashcards from deck source files.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devyk100/memoriva/internal/domain"
)

// Supported reports whether name has an extension ParseFile understands.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".xlsx":
		return true
	}
	return false
}

// ParseFile reads a markdown or spreadsheet file and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return ParseMarkdown(file)
	case ".xlsx":
		return ParseSpreadsheet(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}
