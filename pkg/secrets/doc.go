// Package secrets seals shop access tokens before they are written to the
// database.
//
// Keys are derived per shop from one master key with HKDF-SHA256
// (golang.org/x/crypto/hkdf) and used for AES-256-GCM. The shop domain is
// also bound as additional authenticated data, so a token copied into
// another shop's record fails to open.
//
//	sealer, err := secrets.NewSealerFromConfig(cfg)
//	sealed, err := sealer.Seal("demo.myshopify.com", accessToken)
//	token, err := sealer.Open("demo.myshopify.com", sealed)
package secrets
