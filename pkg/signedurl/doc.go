// Package signedurl issues and verifies time-boxed access links for private
// files.
//
// Two stateless schemes share one Codec. The HMAC scheme signs the file ID
// and expiry with HMAC-SHA256 and is carried as expires/signature query
// parameters; verification recomputes the signature and compares it in
// constant time. The token scheme packs the file ID, expiry, and a random
// nonce into a URL-safe blob for places where the file ID is not already in
// the URL. Both fail closed with a uniform invalid-or-expired outcome.
package signedurl
