// Package identity implements actor identity for the storefront.
//
// It provides:
//   - LoadOrCreateKey    - loads or generates the RSA signing key
//   - ActorTokenIssuer   - issues and verifies RS256 actor tokens
//   - RequireActorToken  - Gin middleware enforcing Bearer actor tokens
//   - JWKSHandler        - publishes the verification key as a JWK set
//   - RoleFor            - maps lifecycle statuses to the role allowed to record them
package identity
