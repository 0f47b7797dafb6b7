// Package epub reads EPUB archives into plain text for narration, and
// writes small EPUB 3 files from plain text.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Book contains package-level metadata.
type Book struct {
	ID       string
	Title    string
	Author   string
	Language string // ISO 639-1 code (e.g., "en")
}

// Chapter is one spine document.
type Chapter struct {
	ID    string // Manifest id (e.g., "ch_001")
	Href  string // Path inside the archive, relative to the package document
	Title string
	Text  string // Plain text; blank lines separate paragraphs
}

// Builder creates EPUB 3 files.
type Builder struct {
	book     Book
	chapters []Chapter
}

// NewBuilder creates a new epub builder.
func NewBuilder(book Book, chapters []Chapter) *Builder {
	if book.ID == "" {
		book.ID = "urn:uuid:" + uuid.New().String()
	}
	if book.Language == "" {
		book.Language = "en"
	}
	for i := range chapters {
		if chapters[i].ID == "" {
			chapters[i].ID = fmt.Sprintf("ch_%03d", i+1)
		}
		if chapters[i].Href == "" {
			chapters[i].Href = "chapters/" + chapters[i].ID + ".xhtml"
		}
	}
	return &Builder{book: book, chapters: chapters}
}

// WriteTo writes the epub to a writer.
func (b *Builder) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)

	// mimetype must be first and stored uncompressed.
	mw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	if _, err := mw.Write([]byte(MimeType)); err != nil {
		return err
	}

	files := []struct {
		name    string
		content string
	}{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", b.generatePackage()},
	}
	for _, ch := range b.chapters {
		files = append(files, struct {
			name    string
			content string
		}{"OEBPS/" + ch.Href, chapterXHTML(ch)})
	}

	for _, f := range files {
		fw, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", f.name, err)
		}
		if _, err := io.WriteString(fw, f.content); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	return zw.Close()
}

// BuildToBuffer generates the epub and returns it as a byte buffer.
func (b *Builder) BuildToBuffer() (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// generatePackage creates the content.opf package document.
func (b *Builder) generatePackage() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&sb, "    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", escapeXML(b.book.ID))
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", escapeXML(b.book.Title))
	if b.book.Author != "" {
		fmt.Fprintf(&sb, "    <dc:creator>%s</dc:creator>\n", escapeXML(b.book.Author))
	}
	fmt.Fprintf(&sb, "    <dc:language>%s</dc:language>\n", escapeXML(b.book.Language))
	sb.WriteString("  </metadata>\n  <manifest>\n")

	for _, ch := range b.chapters {
		fmt.Fprintf(&sb, "    <item id=\"%s\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n",
			escapeXML(ch.ID), escapeXML(ch.Href))
	}

	sb.WriteString("  </manifest>\n  <spine>\n")
	for _, ch := range b.chapters {
		fmt.Fprintf(&sb, "    <itemref idref=\"%s\"/>\n", escapeXML(ch.ID))
	}
	sb.WriteString("  </spine>\n</package>\n")

	return sb.String()
}

// chapterXHTML renders a chapter as XHTML, one <p> per paragraph.
func chapterXHTML(ch Chapter) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>`)
	sb.WriteString(escapeXML(ch.Title))
	sb.WriteString("</title>\n</head>\n<body>\n")

	if ch.Title != "" {
		fmt.Fprintf(&sb, "<h1>%s</h1>\n", escapeXML(ch.Title))
	}
	for _, para := range strings.Split(ch.Text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		fmt.Fprintf(&sb, "<p>%s</p>\n", escapeXML(para))
	}

	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// escapeXML escapes special XML characters.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
