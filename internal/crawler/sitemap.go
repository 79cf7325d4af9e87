// sitemap.xml discovery, merged into the frontier alongside on-page links.
// Built on the teacher's pkg/xml streaming scanner rather than
// encoding/xml, matching how the rest of the platform's XML handling is
// grounded on that package.
package crawler

import (
	"strings"

	xmlstream "github.com/corpusloop/platform/pkg/xml"
)

// ParseSitemapURLs extracts every <loc> URL from a sitemap.xml (or sitemap
// index) document body.
func ParseSitemapURLs(body []byte) ([]string, error) {
	var urls []string
	scanner, err := xmlstream.NewStreamScanner(&xmlstream.StreamScannerConfig{
		Listeners: []*xmlstream.ElementListener{
			{
				Name: xmlstream.Name{Local: "loc"},
				OnComplete: func(e xmlstream.Element) error {
					if u := strings.TrimSpace(elementText(e)); u != "" {
						urls = append(urls, u)
					}
					return nil
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if err := scanner.Scan(strings.NewReader(string(body))); err != nil {
		return nil, err
	}
	return urls, nil
}

func elementText(e xmlstream.Element) string {
	var sb strings.Builder
	for _, c := range e.Contents {
		if cd, ok := c.(xmlstream.CharData); ok {
			sb.Write(cd)
		}
	}
	return sb.String()
}
