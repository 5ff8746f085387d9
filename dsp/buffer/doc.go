// Package buffer provides a planar multichannel block type and pool for
// allocation-friendly rendering. All DSP kernels accept raw [][]float64
// channel slices; Block is a convenience that helps the render loop manage
// allocation and reuse in hot paths.
package buffer
