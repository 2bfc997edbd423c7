// Package secure keeps credentials encrypted in memory.
//
// Tokens wrap memguard enclaves: the plaintext is sealed with
// XSalsa20Poly1305 as soon as it is handed over and only decrypted into a
// locked, guard-paged buffer for the duration of a Use callback.
//
//	tok, err := secure.NewToken(applicationKey)
//	if err != nil {
//	    return err
//	}
//	defer tok.Destroy()
//
//	err = tok.Use(func(b []byte) error {
//	    req.Header.Set("Authorization", "Bearer "+string(b))
//	    return nil
//	})
//
// Callers should run memguard.Purge (via Purge) on shutdown to wipe every
// enclave key from memory.
package secure
