// Package client is the Go SDK for the storefront provenance service.
//
// # Verifying a product before purchase
//
//	c, err := client.New("https://store.example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := c.Verify(ctx, "prod_42")
//	if client.IsRetryable(err) {
//	    // history store briefly unavailable; this is not a verdict
//	}
//	fmt.Println(v.Badge) // "Verified" or "Unverified"
//
// # Recording lifecycle events
//
// Recording requires an actor token whose role matches the status being
// recorded (creator for created, buyer for purchased, fulfiller for delivered):
//
//	c, _ := client.New(base, client.WithBearerToken(token))
//	sub, err := c.Record(ctx, "prod_42", client.RecordRequest{Status: "purchased"})
//
// # Offline verification
//
// VerifyChain submits an exported chain for verification without it being
// stored. Verdicts of stored chains may be cached with WithCacheTTL.
package client
