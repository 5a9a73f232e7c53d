package clustering

import (
	"fmt"
	"html"
	"io"
	"strings"
)

var palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#bcbd22", "#17becf", "#7f7f7f",
}

const (
	marginLeft   = 60.0
	marginRight  = 20.0
	marginTop    = 50.0
	marginBottom = 110.0
	plotHeight   = 320.0
	leafStep     = 28.0
	linkColor    = "#555555"
)

type Dendrogram struct {
	Title  string
	Labels []string // one per leaf, indexed by leaf id
	Link   *Linkage
	Order  []int // leaf ids left to right
	Groups []int // cluster label per leaf id, 0 based
	K      int
}

// WriteSVG renders the tree with links inside a cluster coloured by cluster and a dashed line at the cut
func (d Dendrogram) WriteSVG(w io.Writer) error {
	n := d.Link.N
	width := marginLeft + marginRight + leafStep*float64(n)
	height := marginTop + plotHeight + marginBottom
	maxHeight := d.Link.Height(d.Link.Root())
	if maxHeight <= 0 {
		maxHeight = 1
	}

	position := make([]int, n)
	for i, leaf := range d.Order {
		position[leaf] = i
	}
	y := func(h float64) float64 { return marginTop + plotHeight*(1-h/maxHeight) }

	x := make(map[int]float64, 2*n-1)
	group := make(map[int]int, 2*n-1)
	for leaf := range n {
		x[leaf] = marginLeft + leafStep*(float64(position[leaf])+0.5)
		group[leaf] = d.Groups[leaf]
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f" font-family="sans-serif">`+"\n", width, height, width, height)
	fmt.Fprintf(&b, `<rect width="100%%" height="100%%" fill="white"/>`+"\n")
	fmt.Fprintf(&b, `<text x="%.1f" y="24" font-size="15" text-anchor="middle">%s</text>`+"\n", width/2, html.EscapeString(d.Title))

	// height axis
	fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="black"/>`+"\n", marginLeft-10, y(0), marginLeft-10, y(maxHeight))
	for i := 0; i <= 4; i++ {
		h := maxHeight * float64(i) / 4
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="10" text-anchor="end">%.2f</text>`+"\n", marginLeft-14, y(h)+3, h)
	}

	for i, mg := range d.Link.Merges {
		node := n + i
		x[node] = (x[mg.A] + x[mg.B]) / 2

		color := linkColor
		group[node] = -1
		if ga, gb := group[mg.A], group[mg.B]; ga >= 0 && ga == gb {
			group[node] = ga
			color = palette[ga%len(palette)]
		}

		fmt.Fprintf(&b, `<path d="M%.1f %.1f V%.1f H%.1f V%.1f" fill="none" stroke="%s" stroke-width="1.5"/>`+"\n",
			x[mg.A], y(d.Link.Height(mg.A)), y(mg.Height), x[mg.B], y(d.Link.Height(mg.B)), color)
	}

	if d.K > 1 && d.K < n {
		cut := (d.Link.Merges[n-d.K].Height + d.Link.Merges[n-d.K-1].Height) / 2
		fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#999999" stroke-dasharray="6,4"/>`+"\n",
			marginLeft, y(cut), width-marginRight, y(cut))
	}

	for _, leaf := range d.Order {
		lx, ly := x[leaf], y(0)+8
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="11" text-anchor="end" fill="%s" transform="rotate(-90 %.1f %.1f)">%s</text>`+"\n",
			lx+4, ly, palette[d.Groups[leaf]%len(palette)], lx+4, ly, html.EscapeString(d.Labels[leaf]))
	}

	b.WriteString("</svg>\n")

	_, err := io.WriteString(w, b.String())
	return err
}
