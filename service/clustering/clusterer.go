package clustering

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	m "urs/data/models"
	"urs/service/core"
)

var ErrUnsupported = errors.New("unsupported clustering setting")

type Plotter struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Plotter {
	return &Plotter{log: log.With().Str("component", "clustering").Logger()}
}

// PlotClusters clusters the return columns with ward linkage on the pearson codependence distance
// and writes the dendrogram to settings.Output when requested.
func (p *Plotter) PlotClusters(rt m.ReturnTable, settings m.ClusterSettings) (*m.ClusterSummary, error) {
	if settings.Codependence != core.CodependencePearson {
		return nil, fmt.Errorf("%w: codependence %q", ErrUnsupported, settings.Codependence)
	}
	if settings.Linkage != core.LinkageWard {
		return nil, fmt.Errorf("%w: linkage %q", ErrUnsupported, settings.Linkage)
	}
	if len(rt.Symbols) < 2 {
		return nil, ErrTooFewAssets
	}

	corr := core.CorrelationMatrix(rt)
	if core.HasUndefined(corr) {
		return nil, errors.New("correlation matrix has undefined entries, sanitize the returns first")
	}
	dist := CorrelationDistance(corr)

	link, err := Ward(dist)
	if err != nil {
		return nil, err
	}

	order := NaturalOrder(link)
	if settings.LeafOrder {
		order = OptimalLeafOrder(link, dist)
	}

	k := settings.K
	if k <= 0 {
		k = TwoDiffGap(link, dist, max(settings.MaxK, 1))
	}
	k = min(k, link.N)
	groups := relabel(link.Cut(k), order)

	p.log.Debug().Int("assets", link.N).Int("clusters", k).Float64("adjacent_distance", AdjacentDistance(order, dist)).Msg("clustered")

	if settings.Dendrogram && settings.Output != "" {
		d := Dendrogram{
			Title:  "Assets Clusters (ward linkage, pearson codependence)",
			Labels: rt.Symbols,
			Link:   link,
			Order:  order,
			Groups: groups,
			K:      k,
		}
		if err := writeDendrogram(settings.Output, d); err != nil {
			return nil, err
		}
	}

	summary := &m.ClusterSummary{
		K:        k,
		Symbols:  make([]string, len(order)),
		Clusters: make([]int, len(order)),
	}
	for i, leaf := range order {
		summary.Symbols[i] = rt.Symbols[leaf]
		summary.Clusters[i] = groups[leaf] + 1
	}
	return summary, nil
}

// relabel numbers the clusters in the order they appear along the leaves
func relabel(labels, order []int) []int {
	mapping := make(map[int]int)
	for _, leaf := range order {
		if _, ok := mapping[labels[leaf]]; !ok {
			mapping[labels[leaf]] = len(mapping)
		}
	}
	res := make([]int, len(labels))
	for leaf, l := range labels {
		res[leaf] = mapping[l]
	}
	return res
}

func writeDendrogram(path string, d Dendrogram) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating output directory for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return d.WriteSVG(file)
}
