// Package report renders the rewritten-clauses report as a DOCX file.
package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Title is the heading of every report.
const Title = "AI-Rewritten Contract Clauses Report"

// NotAvailable stands in for a missing rewrite.
const NotAvailable = "Not available"

const wmlNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// Entry is one clause of the report.
type Entry struct {
	ClauseID       int
	RiskLevel      string
	Clause         string
	ModifiedClause string
}

// Meta is printed under the title.
type Meta struct {
	ContractName string
	RunID        string
	GeneratedAt  time.Time
}

// RenderDOCX writes the report as a self-contained WordprocessingML package.
func RenderDOCX(meta Meta, entries []Entry) ([]byte, error) {
	body, err := documentXML(meta, entries)
	if err != nil {
		return nil, err
	}
	if err := validateDocumentXML(body); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/document.xml", body},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("report: create %s: %w", p.name, err)
		}
		if _, err := io.WriteString(w, p.content); err != nil {
			return nil, fmt.Errorf("report: write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("report: close package: %w", err)
	}
	return out.Bytes(), nil
}

func documentXML(meta Meta, entries []Entry) (string, error) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="` + wmlNamespace + `"><w:body>`)

	paragraph(&b, StyleMap["title"], Title)
	if meta.ContractName != "" {
		paragraph(&b, StyleMap["meta"], "Contract: "+meta.ContractName)
	}
	if meta.RunID != "" {
		paragraph(&b, StyleMap["meta"], "Run: "+meta.RunID)
	}
	if !meta.GeneratedAt.IsZero() {
		paragraph(&b, StyleMap["meta"], "Generated: "+meta.GeneratedAt.UTC().Format(time.RFC3339))
	}

	for _, e := range entries {
		if e.ClauseID <= 0 {
			return "", fmt.Errorf("report: invalid clause id %d", e.ClauseID)
		}
		paragraph(&b, StyleMap["clauseHeading"], "Clause "+strconv.Itoa(e.ClauseID))
		labelled(&b, "Original Risk: ", orDefault(e.RiskLevel, "Unknown"))
		labelled(&b, "Original Clause: ", e.Clause)
		labelled(&b, "AI-Modified Clause: ", orDefault(e.ModifiedClause, NotAvailable))
	}

	b.WriteString(`<w:sectPr/></w:body></w:document>`)
	return b.String(), nil
}

func paragraph(b *strings.Builder, style RunStyle, text string) {
	b.WriteString("<w:p>")
	run(b, style, text)
	b.WriteString("</w:p>")
}

func labelled(b *strings.Builder, label, text string) {
	b.WriteString("<w:p>")
	run(b, StyleMap["label"], label)
	run(b, RunStyle{}, text)
	b.WriteString("</w:p>")
}

// run emits one <w:r>; line breaks in text become <w:br/>.
func run(b *strings.Builder, style RunStyle, text string) {
	b.WriteString("<w:r>")
	if props := runProperties(style); props != "" {
		b.WriteString(props)
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		b.WriteString(escape(line))
		b.WriteString("</w:t>")
	}
	b.WriteString("</w:r>")
}

func runProperties(style RunStyle) string {
	var b strings.Builder
	if style.Bold {
		b.WriteString("<w:b/>")
	}
	if style.Italic {
		b.WriteString("<w:i/>")
	}
	if style.Color != "" {
		b.WriteString(`<w:color w:val="` + style.Color + `"/>`)
	}
	if style.Size > 0 {
		b.WriteString(`<w:sz w:val="` + strconv.Itoa(style.Size) + `"/>`)
	}
	if b.Len() == 0 {
		return ""
	}
	return "<w:rPr>" + b.String() + "</w:rPr>"
}

func escape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(stripControl(s))); err != nil {
		return ""
	}
	return b.String()
}

// stripControl drops characters XML 1.0 cannot carry.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r >= 0x20 {
			return r
		}
		return -1
	}, s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// validateDocumentXML rejects malformed output and nested paragraphs.
func validateDocumentXML(xmlText string) error {
	decoder := xml.NewDecoder(strings.NewReader(xmlText))
	depth := 0
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("report: document.xml parse failed: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Space == wmlNamespace && t.Name.Local == "p" {
				if depth > 0 {
					return errors.New("report: document.xml has nested <w:p>")
				}
				depth++
			}
		case xml.EndElement:
			if t.Name.Space == wmlNamespace && t.Name.Local == "p" {
				depth--
			}
		}
	}
	return nil
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`
