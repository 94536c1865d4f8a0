// Package vectorstore provides the vector index backends hybrid retrieval
// searches against.
//
// Every backend implements the same contract: it stores index nodes with
// precomputed embeddings and answers hybrid (semantic plus keyword) queries
// scoped to a single dataset collection. Backends differ in transport, not
// semantics:
//
//   - SQLiteStore: embedded, one SQL candidate scan scored in process
//   - QdrantStore: external server over gRPC, dense and keyword legs fused
//   - ChromemStore: embedded chromem-go database, pure vector similarity
//
// Collection names follow the Vector_index_{dataset}_Node convention and
// are resolved through the Factory, which reuses the binding persisted on
// the dataset when one exists.
package vectorstore
