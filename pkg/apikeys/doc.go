// Package apikeys issues and authenticates organization API keys.
//
// Keys look like lumen_<base64url(32 random bytes)>. Only the SHA-256 hash
// and a short display prefix are stored; the plaintext is returned once, by
// Create. An organization holds at most DefaultMaxPerOrg unrevoked keys.
//
// # Usage
//
//	service := apikeys.NewService(apikeys.NewPostgresStore(db), 0, logger)
//	created, err := service.Create(ctx, orgID, apikeys.CreateRequest{Name: "CI"})
//	// show created.Key to the user now; it cannot be recovered later
//
//	key, err := service.Authenticate(ctx, presented)
//	if errors.Is(err, apikeys.ErrInvalidKey) {
//	    // 401
//	}
package apikeys
