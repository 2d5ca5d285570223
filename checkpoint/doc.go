// Package checkpoint persists and restores training state.
//
// A checkpoint carries the model parameters, the codebook with its EMA
// accumulators, and the optimizer step. Files are self-describing: a
// fixed header records the codec name and compression algorithm, so a
// checkpoint written with one configuration loads under any other.
//
// Manager layers naming, latest-selection and pruning on top of a
// blobstore.Store, so checkpoints can live on the local filesystem,
// MinIO or S3 without the trainer knowing the difference.
package checkpoint
