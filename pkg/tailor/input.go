package tailor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xrsl/tailor/pkg/schema"
)

// minPostingChars rejects files too short to be a job posting.
const minPostingChars = 100

// readPosting reads a posting file, reducing HTML to its visible text.
func readPosting(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		if text, err = htmlText(text); err != nil {
			return "", err
		}
	}
	text = strings.TrimSpace(text)
	if len(text) < minPostingChars {
		return "", fmt.Errorf("posting %s too short (%d chars)", filepath.Base(path), len(text))
	}
	return text, nil
}

func htmlText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Remove unwanted elements
	doc.Find("script, style, noscript, nav, footer, header").Remove()

	var cleaned []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}

// postingIDs derives a unique unit id for every posting path from its file
// name.
func postingIDs(paths []string) []string {
	ids := make([]string, len(paths))
	used := make(map[string]bool, len(paths))
	for i, p := range paths {
		base := schema.Slug(strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)))
		id := base
		for n := 2; used[id]; n++ {
			id = base + "-" + strconv.Itoa(n)
		}
		used[id] = true
		ids[i] = id
	}
	return ids
}
