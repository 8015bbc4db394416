package cnn

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// LayerInfo describes one layer of the network.
type LayerInfo struct {
	Name string
	// OutputShape excludes the batch axis and is reported as [height, width, channels]
	// for feature maps.
	OutputShape []int
	Params      int
}

// Layers lists every layer with its output shape and parameter count.
func (t Topology) Layers() []LayerInfo {
	layers := make([]LayerInfo, 0, 4*Blocks+5)

	h, w, c := t.Height(), t.Width(), t.Channels()
	for b := 0; b < Blocks; b++ {
		filters := t.ConvFilters[b]
		pool := PoolSizes[b]
		layers = append(layers, LayerInfo{
			Name:        fmt.Sprintf("conv2d_%d", b+1),
			OutputShape: []int{h, w, filters},
			Params:      KernelSize*KernelSize*c*filters + filters,
		})
		h, w, c = poolOut(h, pool), poolOut(w, pool), filters
		layers = append(layers,
			LayerInfo{Name: fmt.Sprintf("max_pooling2d_%d", b+1), OutputShape: []int{h, w, c}},
			LayerInfo{Name: fmt.Sprintf("dropout_%d", b+1), OutputShape: []int{h, w, c}},
		)
	}

	flat := h * w * c
	layers = append(layers,
		LayerInfo{Name: "flatten", OutputShape: []int{flat}},
		LayerInfo{Name: "dense_1", OutputShape: []int{t.DenseUnits}, Params: flat*t.DenseUnits + t.DenseUnits},
		LayerInfo{Name: fmt.Sprintf("dropout_%d", Blocks+1), OutputShape: []int{t.DenseUnits}},
		LayerInfo{Name: "dense_2", OutputShape: []int{t.NumClasses}, Params: t.DenseUnits*t.NumClasses + t.NumClasses},
	)
	return layers
}

// ParamCount is the total number of learnable values.
func (t Topology) ParamCount() int {
	total := 0
	for _, l := range t.Layers() {
		total += l.Params
	}
	return total
}

// Summary renders the layer table followed by the parameter total.
func (n *Network) Summary() string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Layer\tOutput Shape\tParam #")
	for _, l := range n.Topology.Layers() {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", l.Name, formatShape(l.OutputShape), l.Params)
	}
	tw.Flush()
	fmt.Fprintf(&sb, "Total params: %d\n", n.ParamCount())
	return sb.String()
}

// formatShape prints a shape with a leading batch placeholder.
func formatShape(shape []int) string {
	parts := make([]string, 0, len(shape)+1)
	parts = append(parts, "None")
	for _, d := range shape {
		parts = append(parts, fmt.Sprint(d))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
