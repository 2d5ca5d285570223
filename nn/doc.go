// Package nn provides the encoder and decoder networks of the VQ-VAE and
// the Adam optimizer that trains them.
//
// Both networks are plain MLPs over the tensor package's autodiff
// graph, with a configurable hidden activation (ELU by default). The decoder parameterizes an independent
// Bernoulli distribution per pixel, so reconstruction likelihoods are
// computed from logits without ever materializing probabilities.
package nn
