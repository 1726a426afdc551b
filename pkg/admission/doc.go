// Package admission validates candidate uploads against named profiles and
// computes their canonical storage location.
//
// A Candidate's bytes may come from a local temp file, an in-memory payload,
// or a caller-supplied URL; all three flow through one pipeline. Gates run
// in order and short-circuit on the first failure:
//
//  1. profile resolution
//  2. size ceiling (remote fetches abort mid-stream on breach)
//  3. content type sniffed from magic bytes, matched against the profile's
//     allowed set with wildcard support ("image/*")
//  4. for remote sources, scheme and SSRF checks before any byte is fetched
//  5. custom sub-folder traversal and whitelist checks
//
// On success the controller returns a cryptographically random file key, the
// derived stored name, and the date-partitioned relative path the caller
// should write the bytes under.
package admission
