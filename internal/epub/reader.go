package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MimeType is the content of an EPUB's mimetype entry.
const MimeType = "application/epub+zip"

// maxEntrySize bounds how much of a single archive entry is read.
const maxEntrySize = 64 << 20

// ErrNotEPUB is returned for data that is not a readable EPUB archive.
var ErrNotEPUB = errors.New("not a valid EPUB archive")

// Document is an EPUB read into plain text.
type Document struct {
	Book     Book
	Chapters []Chapter
}

// Text joins all chapters, separated by blank lines.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Chapters))
	for _, ch := range d.Chapters {
		if ch.Text != "" {
			parts = append(parts, ch.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

type containerDoc struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageDoc struct {
	Metadata struct {
		Title    []string `xml:"title"`
		Creator  []string `xml:"creator"`
		Language []string `xml:"language"`
		ID       []string `xml:"identifier"`
	} `xml:"metadata"`
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef  string `xml:"idref,attr"`
		Linear string `xml:"linear,attr"`
	} `xml:"spine>itemref"`
}

// Read parses an EPUB archive held in memory.
func Read(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEPUB, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	if f, ok := files["mimetype"]; ok {
		mt, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(mt)) != MimeType {
			return nil, fmt.Errorf("%w: unexpected mimetype %q", ErrNotEPUB, mt)
		}
	}

	opfPath, err := rootfilePath(files)
	if err != nil {
		return nil, err
	}
	opfFile, ok := files[opfPath]
	if !ok {
		return nil, fmt.Errorf("%w: package document %s missing", ErrNotEPUB, opfPath)
	}
	opfData, err := readEntry(opfFile)
	if err != nil {
		return nil, err
	}

	var pkg packageDoc
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, fmt.Errorf("%w: invalid package document: %v", ErrNotEPUB, err)
	}

	doc := &Document{Book: Book{
		ID:       first(pkg.Metadata.ID),
		Title:    first(pkg.Metadata.Title),
		Author:   first(pkg.Metadata.Creator),
		Language: first(pkg.Metadata.Language),
	}}

	manifest := make(map[string]int, len(pkg.Manifest))
	for i, item := range pkg.Manifest {
		manifest[item.ID] = i
	}

	base := path.Dir(opfPath)
	for _, ref := range pkg.Spine {
		if ref.Linear == "no" {
			continue
		}
		idx, ok := manifest[ref.IDRef]
		if !ok {
			continue
		}
		item := pkg.Manifest[idx]
		if !isXHTML(item.MediaType) {
			continue
		}

		name, err := entryName(base, item.Href)
		if err != nil {
			return nil, fmt.Errorf("%w: bad href %q: %v", ErrNotEPUB, item.Href, err)
		}
		f, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("%w: spine item %s missing", ErrNotEPUB, name)
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		title, text, err := ExtractXHTML(content)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if text == "" {
			continue
		}
		doc.Chapters = append(doc.Chapters, Chapter{
			ID:    item.ID,
			Href:  item.Href,
			Title: title,
			Text:  text,
		})
	}

	return doc, nil
}

func rootfilePath(files map[string]*zip.File) (string, error) {
	f, ok := files["META-INF/container.xml"]
	if !ok {
		return "", fmt.Errorf("%w: META-INF/container.xml missing", ErrNotEPUB)
	}
	data, err := readEntry(f)
	if err != nil {
		return "", err
	}
	var c containerDoc
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("%w: invalid container.xml: %v", ErrNotEPUB, err)
	}
	for _, rf := range c.Rootfiles {
		if rf.FullPath != "" {
			return rf.FullPath, nil
		}
	}
	return "", fmt.Errorf("%w: no rootfile in container.xml", ErrNotEPUB)
}

// entryName resolves a manifest href, which is a URI reference relative to
// the package document, to a zip entry name.
func entryName(base, href string) (string, error) {
	href, _, _ = strings.Cut(href, "#")
	href, err := url.PathUnescape(href)
	if err != nil {
		return "", err
	}
	return path.Clean(path.Join(base, href)), nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotEPUB, f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotEPUB, f.Name, err)
	}
	return data, nil
}

func isXHTML(mediaType string) bool {
	return mediaType == "application/xhtml+xml" || mediaType == "text/html"
}

func first(vals []string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "pre": true, "table": true, "tr": true,
	"header": true, "footer": true, "aside": true, "figure": true, "figcaption": true,
	"dd": true, "dt": true, "hr": true,
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\f\r\x{00a0}]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// ExtractXHTML returns the first heading and the readable text of an XHTML
// document. Block elements become paragraphs separated by blank lines.
func ExtractXHTML(content []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", "", err
	}
	doc.Find("script, style").Remove()

	title = strings.TrimSpace(doc.Find("h1, h2, h3").First().Text())

	var sb strings.Builder
	walk(doc.Find("body").Nodes, &sb)
	if sb.Len() == 0 {
		walk(doc.Nodes, &sb)
	}
	return collapse(title), normalize(sb.String()), nil
}

func walk(nodes []*html.Node, sb *strings.Builder) {
	for _, n := range nodes {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		case html.ElementNode, html.DocumentNode:
			block := n.Type == html.ElementNode && blockElements[n.Data]
			if n.Type == html.ElementNode && n.Data == "br" {
				sb.WriteString("\n")
				continue
			}
			if block {
				sb.WriteString("\n\n")
			}
			var children []*html.Node
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				children = append(children, c)
			}
			walk(children, sb)
			if block {
				sb.WriteString("\n\n")
			}
		}
	}
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " "))
}
