// Package metadata reads the speaker metadata table: a headerless CSV with
// one speaker per row and the columns speaker_id, gender, language.
package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	xlanguage "golang.org/x/text/language"

	"crossvoice/internal/language"
)

// ErrDuplicateSpeaker is returned when a speaker id appears twice.
var ErrDuplicateSpeaker = errors.New("duplicate speaker id")

// Speaker is one metadata row with normalized labels.
type Speaker struct {
	ID       string
	Gender   string
	Language string
	// Line is the 1-based line number in the source file.
	Line int
}

// Table maps speaker ids to their metadata and remembers file order.
type Table struct {
	speakers []Speaker
	index    map[string]int
}

var titleCaser = cases.Title(xlanguage.Und)

// Load reads the table at path.
func Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer file.Close()

	table, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", path, err)
	}
	return table, nil
}

// Parse reads a table from r. Columns past the third are ignored, blank
// lines and lines starting with '#' are skipped, and a leading header row
// (gender and language in columns two and three) is tolerated.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	table := &Table{index: make(map[string]int)}
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("line %d: expected 3 columns (speaker_id, gender, language), got %d", line, len(record))
		}
		speaker := Speaker{
			ID:       strings.TrimSpace(record[0]),
			Gender:   NormalizeGender(record[1]),
			Language: language.Canonical(record[2]),
			Line:     line,
		}
		if speaker.ID == "" {
			return nil, fmt.Errorf("line %d: empty speaker id", line)
		}
		if speaker.Gender == "" || speaker.Language == "" {
			return nil, fmt.Errorf("line %d: speaker %q has empty gender or language", line, speaker.ID)
		}
		if prev, ok := table.index[speaker.ID]; ok {
			return nil, fmt.Errorf("%w %q on lines %d and %d", ErrDuplicateSpeaker, speaker.ID, table.speakers[prev].Line, line)
		}
		table.index[speaker.ID] = len(table.speakers)
		table.speakers = append(table.speakers, speaker)
	}
	return table, nil
}

func isHeader(record []string) bool {
	if len(record) < 3 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[1]), "gender") &&
		strings.EqualFold(strings.TrimSpace(record[2]), "language")
}

// NormalizeGender maps common spellings onto "Male" and "Female" and
// title-cases anything else.
func NormalizeGender(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "":
		return ""
	case "m", "male", "man":
		return "Male"
	case "f", "female", "woman":
		return "Female"
	default:
		return titleCaser.String(value)
	}
}

// Speakers returns the rows in file order.
func (t *Table) Speakers() []Speaker {
	if t == nil {
		return nil
	}
	return append([]Speaker(nil), t.speakers...)
}

// Lookup returns the row for id.
func (t *Table) Lookup(id string) (Speaker, bool) {
	if t == nil {
		return Speaker{}, false
	}
	idx, ok := t.index[id]
	if !ok {
		return Speaker{}, false
	}
	return t.speakers[idx], true
}

// Len returns the number of speakers.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.speakers)
}
