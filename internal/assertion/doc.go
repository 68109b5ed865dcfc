// Package assertion builds the signed identity assertions exchanged for access
// tokens under the OAuth 2.0 JWT bearer grant.
//
// An assertion is an RS256-signed JWT carrying the connected app's client id
// as issuer, the integration user as subject, and the login URL as audience.
// It is valid for [Lifetime] from the moment it is signed and is used exactly
// once.
//
// # Keys
//
// Keys are RSA private keys, loaded from PEM (PKCS#1 or PKCS#8) with
// [ParsePrivateKeyPEM] or from a PKCS#12 keystore export with [ParsePKCS12].
// Every failure to load or use a key is reported as an
// [apierrors.SigningError].
package assertion
