package language

import (
	"strings"

	"golang.org/x/text/cases"
	xlanguage "golang.org/x/text/language"
)

type entry struct {
	code2   string   // ISO 639-1
	code3   string   // ISO 639-2 primary
	alt3    string   // ISO 639-2 bibliographic variant, e.g. "dut" for "nld"
	display string   // name used in task labels
	words   []string // lower-case word forms, including endonyms
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"da", "dan", "", "Danish", []string{"danish", "dansk"}},
	{"nl", "nld", "dut", "Dutch", []string{"dutch", "nederlands"}},
	{"de", "deu", "ger", "German", []string{"german", "deutsch"}},
	{"fr", "fra", "fre", "French", []string{"french", "français", "francais"}},
	{"es", "spa", "", "Spanish", []string{"spanish", "español", "espanol"}},
	{"it", "ita", "", "Italian", []string{"italian", "italiano"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese", "português"}},
	{"sv", "swe", "", "Swedish", []string{"swedish", "svenska"}},
	{"no", "nor", "", "Norwegian", []string{"norwegian", "norsk"}},
	{"fi", "fin", "", "Finnish", []string{"finnish", "suomi"}},
	{"pl", "pol", "", "Polish", []string{"polish", "polski"}},
	{"ru", "rus", "", "Russian", []string{"russian"}},
	{"zh", "zho", "chi", "Chinese", []string{"chinese", "mandarin"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "Korean", []string{"korean"}},
	{"hi", "hin", "", "Hindi", []string{"hindi"}},
	{"ar", "ara", "", "Arabic", []string{"arabic"}},
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry

	titleCaser = cases.Title(xlanguage.Und)
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages)*2)
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(label string) *entry {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return nil
	}
	if e, ok := byWord[label]; ok {
		return e
	}
	if e, ok := byCode2[label]; ok {
		return e
	}
	if e, ok := byCode3[label]; ok {
		return e
	}
	// BCP 47 tags such as "en-GB" or "pt_BR" resolve through their base language.
	if tag, err := xlanguage.Parse(strings.ReplaceAll(label, "_", "-")); err == nil {
		base, _ := tag.Base()
		if e, ok := byCode2[base.String()]; ok {
			return e
		}
		if e, ok := byCode3[base.ISO3()]; ok {
			return e
		}
	}
	return nil
}

// Canonical returns the display name used in task labels for a language
// label taken from a metadata table. Codes, tags and word forms of known
// languages map to one name ("en", "eng", "en-GB", "english" -> "English").
// Unknown labels are title-cased so "klingon" and "KLINGON" still agree.
func Canonical(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	if e := lookup(label); e != nil {
		return e.display
	}
	return titleCaser.String(strings.ToLower(label))
}

// ToISO2 converts any recognized language label to ISO 639-1.
// Returns an empty string for unrecognized input.
func ToISO2(label string) string {
	if e := lookup(label); e != nil {
		return e.code2
	}
	return ""
}

// IsEnglish reports whether label names English in any supported form.
func IsEnglish(label string) bool {
	return ToISO2(label) == "en"
}
