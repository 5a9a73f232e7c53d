package clustering

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	ex "urs/data/extensions"
	m "urs/data/models"
	"urs/service/core"
)

// lineDistance places each leaf on a line, distance is the absolute gap
func lineDistance(points ...float64) *mat.SymDense {
	dist := mat.NewSymDense(len(points), nil)
	for i := range points {
		for j := range i {
			dist.SetSym(i, j, math.Abs(points[i]-points[j]))
		}
	}
	return dist
}

func Test_CorrelationDistance(t *testing.T) {
	corr := mat.NewSymDense(3, []float64{
		1, 1, -1,
		1, 1, 0,
		-1, 0, 1,
	})

	dist := CorrelationDistance(corr)
	ex.AssertAreEqual(t, "diagonal", 0.0, dist.At(0, 0))
	ex.AssertAreEqual(t, "perfect", 0.0, dist.At(0, 1))
	ex.AssertInDelta(t, "opposite", 1, dist.At(0, 2), 1e-12)
	ex.AssertInDelta(t, "uncorrelated", math.Sqrt(0.5), dist.At(1, 2), 1e-12)
}

func Test_Ward_LanceWilliams(t *testing.T) {
	link, err := Ward(lineDistance(0, 1, 5, 6))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	ex.AssertAreEqual(t, "merges", 3, len(link.Merges))
	ex.AssertAreEqual(t, "first", Merge{A: 0, B: 1, Height: 1, Size: 2}, link.Merges[0])
	ex.AssertAreEqual(t, "second", Merge{A: 2, B: 3, Height: 1, Size: 2}, link.Merges[1])

	root := link.Merges[2]
	ex.AssertAreEqual(t, "root children", [2]int{4, 5}, [2]int{root.A, root.B})
	ex.AssertAreEqual(t, "root size", 4, root.Size)
	// ward distance between {0,1} and {5,6} is sqrt(2 n1 n2 / (n1 + n2)) * |c1 - c2|
	ex.AssertInDelta(t, "root height", math.Sqrt(2)*5, root.Height, 1e-9)

	ex.AssertAreEqual(t, "root id", 6, link.Root())
	ex.AssertSliceEqual(t, "leaves", []int{0, 1, 2, 3}, link.Leaves(link.Root()))
}

func Test_Ward_TooFewAssets(t *testing.T) {
	if _, err := Ward(mat.NewSymDense(1, nil)); !errors.Is(err, ErrTooFewAssets) {
		t.Fatalf("expected ErrTooFewAssets, got %v", err)
	}
}

func Test_Linkage_Cut(t *testing.T) {
	link, _ := Ward(lineDistance(0, 1, 5, 6))

	ex.AssertSliceEqual(t, "one", []int{0, 0, 0, 0}, link.Cut(1))
	ex.AssertSliceEqual(t, "two", []int{0, 0, 1, 1}, link.Cut(2))
	ex.AssertSliceEqual(t, "four", []int{0, 1, 2, 3}, link.Cut(4))
	ex.AssertSliceEqual(t, "clamped", []int{0, 1, 2, 3}, link.Cut(9))
}

func Test_OptimalLeafOrder(t *testing.T) {
	// leaf 0 sits right of leaf 1, so the natural order wastes a step
	dist := lineDistance(1, 0, 5, 6)
	link, _ := Ward(dist)

	natural := NaturalOrder(link)
	ex.AssertSliceEqual(t, "natural", []int{0, 1, 2, 3}, natural)
	ex.AssertAreEqual(t, "natural cost", 7.0, AdjacentDistance(natural, dist))

	optimal := OptimalLeafOrder(link, dist)
	ex.AssertSliceEqual(t, "optimal", []int{1, 0, 2, 3}, optimal)
	ex.AssertAreEqual(t, "optimal cost", 6.0, AdjacentDistance(optimal, dist))
}

func Test_OptimalLeafOrder_NeverWorse(t *testing.T) {
	dist := lineDistance(3, 9, 0, 4.5, 8, 1, 7.5, 2)
	link, _ := Ward(dist)

	optimal := OptimalLeafOrder(link, dist)
	ex.AssertAreEqual(t, "length", 8, len(optimal))
	seen := map[int]bool{}
	for _, leaf := range optimal {
		seen[leaf] = true
	}
	ex.AssertAreEqual(t, "permutation", 8, len(seen))

	if AdjacentDistance(optimal, dist) > AdjacentDistance(NaturalOrder(link), dist)+1e-12 {
		t.Fatalf("optimal order is worse than the natural order")
	}
}

func Test_TwoDiffGap(t *testing.T) {
	three := lineDistance(0, 0.1, 0.2, 0.3, 0.4, 0.5, 10, 10.1, 10.2, 10.3, 10.4, 30, 30.1, 30.2, 30.3, 30.4)
	link, _ := Ward(three)

	ex.AssertAreEqual(t, "three groups", 3, TwoDiffGap(link, three, 10))
	ex.AssertAreEqual(t, "bounded by max k", 2, TwoDiffGap(link, three, 2))

	pair := lineDistance(0, 1)
	pairLink, _ := Ward(pair)
	ex.AssertAreEqual(t, "two assets", 1, TwoDiffGap(pairLink, pair, 10))
}

func Test_WithinDispersion(t *testing.T) {
	dist := lineDistance(0, 2, 10, 13, 20)
	// {0,2} mean 2, {10,13} mean 3, singleton ignored
	ex.AssertAreEqual(t, "dispersion", 5.0, WithinDispersion([]int{0, 0, 1, 1, 2}, dist))
}

func returnTable(symbols []string, columns ...[]float64) m.ReturnTable {
	dates := make([]time.Time, len(columns[0]))
	for i := range dates {
		dates[i] = time.Date(2024, 1, i+2, 0, 0, 0, 0, time.UTC)
	}
	return m.ReturnTable{Dates: dates, Symbols: symbols, Columns: columns}
}

func pairedReturns() m.ReturnTable {
	return returnTable([]string{"X", "Y", "X2", "A&B"},
		[]float64{0.01, -0.01, 0.01, -0.01, 0.01, -0.01},
		[]float64{0.01, 0.01, -0.01, -0.01, 0.01, 0.01},
		[]float64{0.01, -0.01, 0.01, -0.01, 0.01, -0.009},
		[]float64{0.01, 0.01, -0.01, -0.01, 0.01, 0.009},
	)
}

func defaultSettings(output string) m.ClusterSettings {
	return m.ClusterSettings{
		Codependence: core.CodependencePearson,
		Linkage:      core.LinkageWard,
		K:            2,
		MaxK:         10,
		LeafOrder:    true,
		Dendrogram:   true,
		Output:       output,
	}
}

func TestPlotter_PlotClusters(t *testing.T) {
	output := filepath.Join(t.TempDir(), "plots", "clusters.svg")

	summary, err := New(zerolog.Nop()).PlotClusters(pairedReturns(), defaultSettings(output))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.K)
	assert.ElementsMatch(t, []string{"X", "Y", "X2", "A&B"}, summary.Symbols)

	cluster := map[string]int{}
	for i, s := range summary.Symbols {
		cluster[s] = summary.Clusters[i]
	}
	assert.Equal(t, cluster["X"], cluster["X2"])
	assert.Equal(t, cluster["Y"], cluster["A&B"])
	assert.NotEqual(t, cluster["X"], cluster["Y"])
	assert.Equal(t, 1, summary.Clusters[0], "clusters are numbered along the leaves")

	raw, err := os.ReadFile(output)
	require.NoError(t, err)
	svg := string(raw)
	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, ">X2</text>")
	assert.Contains(t, svg, "A&amp;B")
	assert.Contains(t, svg, "stroke-dasharray")
}

func TestPlotter_PicksClusterCount(t *testing.T) {
	settings := defaultSettings("")
	settings.K = 0

	summary, err := New(zerolog.Nop()).PlotClusters(pairedReturns(), settings)
	require.NoError(t, err)
	// four assets bound the search to sqrt(4) = 2 clusters
	assert.Equal(t, 2, summary.K)
}

func TestPlotter_RejectsUnsupportedSettings(t *testing.T) {
	p := New(zerolog.Nop())

	settings := defaultSettings("")
	settings.Linkage = "single"
	_, err := p.PlotClusters(pairedReturns(), settings)
	assert.ErrorIs(t, err, ErrUnsupported)

	settings = defaultSettings("")
	settings.Codependence = "spearman"
	_, err = p.PlotClusters(pairedReturns(), settings)
	assert.ErrorIs(t, err, ErrUnsupported)

	one := returnTable([]string{"X"}, []float64{0.01, 0.02})
	_, err = p.PlotClusters(one, defaultSettings(""))
	assert.ErrorIs(t, err, ErrTooFewAssets)
}

func TestDendrogram_WriteSVG(t *testing.T) {
	link, _ := Ward(lineDistance(0, 1, 5, 6))
	d := Dendrogram{
		Title:  "test",
		Labels: []string{"a", "b", "c", "d"},
		Link:   link,
		Order:  NaturalOrder(link),
		Groups: link.Cut(2),
		K:      2,
	}

	var buf bytes.Buffer
	require.NoError(t, d.WriteSVG(&buf))

	svg := buf.String()
	assert.Equal(t, 3, strings.Count(svg, "<path"))
	assert.Contains(t, svg, palette[0])
	assert.Contains(t, svg, palette[1])
	assert.True(t, strings.HasSuffix(svg, "</svg>\n"))
}
