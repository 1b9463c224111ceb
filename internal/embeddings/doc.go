// Package embeddings turns chunk text into vectors.
//
// Providers: FastEmbed (local ONNX, cgo builds only), a TEI server over HTTP,
// Google AI through langchaingo, and a deterministic feature-hashing embedder
// that needs no model. Every provider is wrapped so that generation latency,
// batch size and errors are recorded as OpenTelemetry metrics.
//
// FastEmbed needs the ONNX runtime shared library; point ONNX_PATH at it.
package embeddings
