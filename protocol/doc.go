// Package protocol defines the messages exchanged between quickstart clients
// and the development cluster.
//
// # Requests
//
// Every client request is wrapped in Signed[T] with the client's Ed25519 user
// key. The cluster derives the caller's user id from the signing key, so a
// request cannot act on behalf of another user.
//
// # Quote, pay, submit
//
// Chargeable operations (storing a program, storing values, computing) follow
// three steps:
//
//  1. The client describes the operation (StoreProgramOperation,
//     StoreValuesOperation, ComputeOperation) and asks for a Quote. The
//     cluster signs the quote; it names the price, the payment address and the
//     digest of the operation.
//  2. The client pays the quote on the ledger, using the quote nonce as memo.
//  3. The client submits the operation with a Receipt (signed quote plus
//     transaction hash). The cluster recomputes the operation digest from the
//     submission, checks the payment, and accepts each receipt once.
//
// # Values
//
// Public values travel in clear. Secret values are additively shared over the
// field 2^127-1, and every share is sealed with AES-GCM under an X25519 key
// shared between the sender's node key and the receiving cluster node.
// Sealed shares are bound to a scope (the quote nonce for uploads, the compute
// id for outputs) and to the value name. Outputs travel back the same way,
// sealed by each node to the output party's key.
package protocol
