// Package verse parses and formats Bible verse references.
//
// References follow the pattern "<BookName> <chapter>[:<start>[-<end>]]",
// e.g. "João 3:16" or "Salmos 23:1-6". Book names are matched against a
// canonical table case- and diacritic-insensitively, after stripping leading
// ordinal prefixes ("1ª", "2º", "I", "II").
package verse

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/salasoft/battleplan/internal/models"
)

// Reference is a parsed verse reference. StartVerse and EndVerse are zero
// when the reference names a whole chapter or a single verse respectively.
type Reference struct {
	Book       string `json:"book"` // canonical book name
	Chapter    int    `json:"chapter"`
	StartVerse int    `json:"start_verse,omitempty"`
	EndVerse   int    `json:"end_verse,omitempty"`
}

// String formats the reference back into its canonical textual form.
// Parse(r.String()) yields r for any valid Reference.
func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Book)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(r.Chapter))
	if r.StartVerse > 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r.StartVerse))
		if r.EndVerse > 0 {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(r.EndVerse))
		}
	}
	return b.String()
}

// canonicalBooks lists the 66 books with their Portuguese canonical names.
var canonicalBooks = []string{
	"Gênesis", "Êxodo", "Levítico", "Números", "Deuteronômio",
	"Josué", "Juízes", "Rute", "1 Samuel", "2 Samuel",
	"1 Reis", "2 Reis", "1 Crônicas", "2 Crônicas", "Esdras",
	"Neemias", "Ester", "Jó", "Salmos", "Provérbios",
	"Eclesiastes", "Cânticos", "Isaías", "Jeremias", "Lamentações",
	"Ezequiel", "Daniel", "Oséias", "Joel", "Amós",
	"Obadias", "Jonas", "Miquéias", "Naum", "Habacuque",
	"Sofonias", "Ageu", "Zacarias", "Malaquias",
	"Mateus", "Marcos", "Lucas", "João", "Atos",
	"Romanos", "1 Coríntios", "2 Coríntios", "Gálatas", "Efésios",
	"Filipenses", "Colossenses", "1 Tessalonicenses", "2 Tessalonicenses",
	"1 Timóteo", "2 Timóteo", "Tito", "Filemom", "Hebreus",
	"Tiago", "1 Pedro", "2 Pedro", "1 João", "2 João", "3 João",
	"Judas", "Apocalipse",
}

// bookAliases maps common alternative spellings to canonical names.
var bookAliases = map[string]string{
	"cantares":             "Cânticos",
	"cantares de salomao":  "Cânticos",
	"canticos dos cantico": "Cânticos",
	"atos dos apostolos":   "Atos",
	"salmo":                "Salmos",
	"proverbio":            "Provérbios",
}

// bookIndex maps normalized book names to canonical spellings. Built once at
// init from canonicalBooks plus aliases.
var bookIndex = buildBookIndex()

func buildBookIndex() map[string]string {
	idx := make(map[string]string, len(canonicalBooks)+len(bookAliases))
	for _, name := range canonicalBooks {
		idx[normalizeBook(name)] = name
	}
	for alias, name := range bookAliases {
		idx[normalizeBook(alias)] = name
	}
	return idx
}

// foldTransform strips diacritics: NFKD also decomposes the ordinal
// indicators "ª"/"º" into plain letters so "1ª" folds to "1a".
var foldTransform = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips diacritics from s.
func fold(s string) string {
	out, _, err := transform.String(foldTransform, s)
	if err != nil {
		// Transform failures only occur on invalid UTF-8; fall back to the
		// raw string so lookup simply misses.
		out = s
	}
	return strings.ToLower(out)
}

var (
	ordinalToken = regexp.MustCompile(`^([1-3])[ao]?\.?$`)
	romanToken   = map[string]string{"i": "1", "ii": "2", "iii": "3"}
)

// normalizeBook produces the lookup key for a book name: folded,
// single-spaced, with any leading ordinal prefix reduced to a bare digit.
func normalizeBook(name string) string {
	fields := strings.Fields(fold(name))
	if len(fields) == 0 {
		return ""
	}
	if m := ordinalToken.FindStringSubmatch(fields[0]); m != nil {
		fields[0] = m[1]
	} else if digit, ok := romanToken[fields[0]]; ok {
		fields[0] = digit
	}
	return strings.Join(fields, " ")
}

// CanonicalBook resolves an arbitrary spelling of a book name to its
// canonical form.
func CanonicalBook(name string) (string, bool) {
	canonical, ok := bookIndex[normalizeBook(name)]
	return canonical, ok
}

// refPattern splits "<book> <chapter>[:<start>[-<end>]]". The book part is
// matched lazily so multi-word names keep their trailing words.
var refPattern = regexp.MustCompile(`^(.+?)\s+(\d+)(?::(\d+)(?:-(\d+))?)?$`)

// Parse parses a verse reference string. It returns a validation error for
// unknown books, malformed patterns, or inverted verse ranges.
func Parse(ref string) (Reference, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return Reference{}, models.Validationf("verse reference is empty")
	}
	m := refPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Reference{}, models.Validationf("malformed verse reference %q", ref)
	}
	book, ok := CanonicalBook(m[1])
	if !ok {
		return Reference{}, models.Validationf("unknown book %q in reference %q", m[1], ref)
	}
	chapter, err := strconv.Atoi(m[2])
	if err != nil || chapter < 1 {
		return Reference{}, models.Validationf("invalid chapter in reference %q", ref)
	}
	out := Reference{Book: book, Chapter: chapter}
	if m[3] != "" {
		out.StartVerse, err = strconv.Atoi(m[3])
		if err != nil || out.StartVerse < 1 {
			return Reference{}, models.Validationf("invalid start verse in reference %q", ref)
		}
	}
	if m[4] != "" {
		out.EndVerse, err = strconv.Atoi(m[4])
		if err != nil || out.EndVerse < out.StartVerse {
			return Reference{}, models.Validationf("invalid verse range in reference %q", ref)
		}
	}
	return out, nil
}
