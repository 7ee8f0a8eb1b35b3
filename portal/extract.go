package portal

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lsfwatch/snapshot"
)

// normalizeContent flattens the grades content region into a stable textual
// form. If the region contains a table, each row becomes one line with cell
// texts joined by " | " in DOM order; otherwise the whole region text is
// collapsed. Either way the result is whitespace-normalized so rendering
// noise never looks like a grade change.
func normalizeContent(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	rows := doc.Find("table tr")
	if rows.Length() == 0 {
		return snapshot.Normalize(doc.Text()), nil
	}

	var lines []string
	rows.Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			if t := snapshot.Normalize(cell.Text()); t != "" {
				cells = append(cells, t)
			}
		})
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " | "))
		}
	})

	if len(lines) == 0 {
		return snapshot.Normalize(doc.Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}
