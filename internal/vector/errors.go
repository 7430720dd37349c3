package vector

import "errors"

var (
	// ErrEmptyVector indicates a vector with zero length was supplied.
	ErrEmptyVector = errors.New("vector is empty")

	// ErrZeroNorm indicates a vector whose L2 norm is zero and which
	// therefore cannot be scaled to unit length.
	ErrZeroNorm = errors.New("vector has zero norm")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrMissingEmbedding indicates a photo without an embedding was offered
	// to the index.
	ErrMissingEmbedding = errors.New("photo has no embedding")
)
