// HTML and PDF text extraction. HTML boilerplate stripping is grounded on
// github.com/PuerkitoBio/goquery's jQuery-style DOM API; PDF text
// extraction follows the teacher pack's ledongthuc/pdf usage in
// teradata-labs-loom's DocumentParseTool.parsePDF (pdf.Open, reader.Page,
// page.GetPlainText), generalized here to concatenate every page instead
// of a page-selectable tool parameter.
package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// ExtractedPage is the text and metadata pulled from one fetched document.
type ExtractedPage struct {
	Title       string
	Description string
	Text        string
	Links       []string
}

// ExtractHTML parses an HTML document, strips script/style/nav
// boilerplate, and returns its visible text plus every same-document
// anchor href for frontier expansion.
func ExtractHTML(body []byte) (ExtractedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ExtractedPage{}, fmt.Errorf("crawler: parse html: %w", err)
	}

	doc.Find("script, style, noscript, nav, footer").Remove()

	page := ExtractedPage{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		page.Description = strings.TrimSpace(desc)
	}

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(strings.TrimSpace(s.Text()))
	})
	page.Text = collapseWhitespace(sb.String())

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			page.Links = append(page.Links, href)
		}
	})

	return page, nil
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ExtractPDF concatenates the plain text of every page in a PDF document,
// skipping pages that fail to extract rather than aborting the whole
// document.
func ExtractPDF(body []byte, maxPages int) (ExtractedPage, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return ExtractedPage{}, fmt.Errorf("crawler: open pdf: %w", err)
	}

	total := reader.NumPage()
	if maxPages <= 0 || maxPages > total {
		maxPages = total
	}

	var sb strings.Builder
	for i := 1; i <= maxPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString(" ")
	}

	return ExtractedPage{Text: collapseWhitespace(sb.String())}, nil
}
