package portal

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"shiftwatch/internal/shifts"
)

// ParseShiftTable extracts shift rows from the table with the given id.
//
// Expected column order: date, time_from, time_to, responsible. A row
// whose class marks it disabled yields Allowed=false. The portal
// renders a single placeholder row ("dataTables_empty") when a table
// has no entries; that row is skipped. A missing table parses as empty:
// the portal omits tables the user has no access to.
func ParseShiftTable(r io.Reader, tableID string) ([]shifts.Shift, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	table := findByID(doc, tableID)
	if table == nil {
		return []shifts.Shift{}, nil
	}

	var out []shifts.Shift
	for _, tr := range findAll(table, "tr") {
		cells := findAll(tr, "td")
		if len(cells) == 0 || isEmptyPlaceholder(cells) {
			continue
		}
		if len(cells) < 4 {
			continue
		}
		out = append(out, shifts.Shift{
			Date:        text(cells[0]),
			TimeFrom:    text(cells[1]),
			TimeTo:      text(cells[2]),
			Responsible: text(cells[3]),
			Allowed:     !hasClass(tr, "disabled"),
		})
	}
	if out == nil {
		out = []shifts.Shift{}
	}
	return out, nil
}

func isEmptyPlaceholder(cells []*html.Node) bool {
	return len(cells) == 1 && hasClass(cells[0], "dataTables_empty")
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode && cur.Data == tag {
			out = append(out, cur)
			return // rows don't nest; don't descend into matches
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
