// Package corpus manages the on-disk chunk files the vector index is built from.
//
// Two namespaces are kept apart: a manually curated directory and the
// directory written by URL ingestion. Each .txt file is one indexable text.
package corpus

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
)

const (
	CuratedDir = "textos"
	WebDir     = "web_txt"

	maxTitleSlug = 60
)

type Corpus struct {
	curated string
	web     string
}

// New roots both namespaces under dataDir and creates them if missing.
func New(dataDir string) (*Corpus, error) {
	c := &Corpus{
		curated: filepath.Join(dataDir, CuratedDir),
		web:     filepath.Join(dataDir, WebDir),
	}
	for _, dir := range []string{c.curated, c.web} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating corpus directory: %w", err)
		}
	}
	return c, nil
}

// Texts returns the trimmed, non-empty contents of every .txt file, curated
// first, each directory in lexical file order.
func (c *Corpus) Texts() ([]string, error) {
	var texts []string
	for _, dir := range []string{c.curated, c.web} {
		paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", p, err)
			}
			if t := strings.TrimSpace(string(data)); t != "" {
				texts = append(texts, t)
			}
		}
	}
	return texts, nil
}

// Save writes chunks of one ingested page as <slug>-NNN.txt in the web namespace.
func (c *Corpus) Save(source, title string, chunks []string) ([]models.Chunk, error) {
	base := BaseName(source, title)
	saved := make([]models.Chunk, 0, len(chunks))
	for i, text := range chunks {
		seq := i + 1
		path := filepath.Join(c.web, fmt.Sprintf("%s-%03d.txt", base, seq))
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return saved, fmt.Errorf("writing chunk %d: %w", seq, err)
		}
		saved = append(saved, models.Chunk{
			Source: source,
			Seq:    seq,
			Text:   text,
			Path:   path,
		})
	}
	return saved, nil
}

// BaseName is the slug of the first 60 title characters, or of the URL host
// when the title yields nothing.
func BaseName(source, title string) string {
	t := []rune(title)
	if len(t) > maxTitleSlug {
		t = t[:maxTitleSlug]
	}
	if s := Slugify(string(t)); s != "" {
		return s
	}
	host := source
	if u, err := url.Parse(source); err == nil && u.Host != "" {
		host = u.Host
	}
	if s := Slugify(host); s != "" {
		return s
	}
	return "page"
}

var (
	nonSlug   = regexp.MustCompile(`[^\w\s-]`)
	dashSpace = regexp.MustCompile(`[-\s]+`)
)

// Slugify lowercases, strips accents and punctuation and joins words with hyphens.
func Slugify(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, value)
	if err != nil {
		ascii = value
	}
	ascii = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, ascii)
	ascii = nonSlug.ReplaceAllString(strings.ToLower(ascii), "")
	return strings.Trim(dashSpace.ReplaceAllString(ascii, "-"), "-_")
}
