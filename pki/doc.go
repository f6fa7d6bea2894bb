// Package pki derives user identity from an EasyRSA PKI directory tree and
// drives the EasyRSA executable itself.
//
// The PKI directory is the only source of truth: a user is "known" exactly
// when a certificate stem exists under issued/ or a key stem exists under
// private/ (the authority's own "ca" key excluded). No database or other
// metadata is consulted.
//
// All cryptographic operations (issuance, revocation, CRL generation) are
// delegated to the external EasyRSA subprocess; this package never touches
// key material beyond copying files.
package pki
