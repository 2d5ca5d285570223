// Package quantize implements the vector-quantization bottleneck of a
// VQ-VAE: the codebook store, nearest-neighbor quantizer, EMA codebook
// updater and straight-through loss composer.
//
// The codebook is deliberately kept outside the gradient-tracked parameter
// set. It is mutated exactly once per training step by the EMA updater;
// the loss built by ComposeLoss never backpropagates into it.
package quantize
