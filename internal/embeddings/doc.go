// Package embeddings turns text into the vectors the vector backends
// search against.
//
// Two providers are supported: OpenAI (or any OpenAI-compatible endpoint)
// and TEI, Hugging Face's text-embeddings-inference server. Both implement
// the same Provider interface so the retrieval path never cares which one
// is configured.
package embeddings
