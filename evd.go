// Package evdb is the root of the encrypted vector database module, a
// client-server service storing embedding vectors and opaque payloads under a
// ring/module-LWE homomorphic encryption scheme. The server computes inner
// product or cosine similarity scores over the whole database without seeing
// the query, and payloads can be fetched either directly or through a
// two-dimensional private information retrieval protocol.
//
// The layering follows, from bottom to top:
//   - ring: single-modulus negacyclic polynomial ring arithmetic and samplers
//   - rlwe: ciphertexts, key material and the homomorphic evaluator
//   - evd: client, similarity server and PIR server
//   - evdapi, evdserver, evdclient: wire codec, HTTP shell and coordinator
package evdb

// Version is the current version of the module.
const Version = "1.0.0"
