// Package auth manages credentials and issues short lived session tokens for
// accounts that have proven ownership of their email address.
//
// Account lifecycle:
//   - Accounts move unregistered -> unconfirmed -> confirmed. Federated
//     (OAuth) accounts are created directly in the confirmed state. The
//     transition table lives in lifecycle.go and any other move is rejected
//     with ErrInvalidTransition.
//   - Controller drives registration, login, email confirmation and the
//     OAuth callback. A password login for an unconfirmed account never
//     yields a token; it mails a fresh confirmation link instead.
//
// Collaborators:
//   - IdentityStore persists accounts and single-use confirmation tokens.
//     AccountStore is the bun implementation (sqlite or postgres) and owns
//     password hashing and the password policy.
//   - MailGateway delivers confirmation mail. Delivery errors fail the
//     request and are bounded by a timeout.
//   - OAuthProvider runs the provider side of federated login; see the
//     social package for Google.
//
// Session tokens:
//   - TokenIssuer signs HS256 JWTs carrying sub, jti, iat, exp, iss and aud
//     plus informational email and name claims. NewTokenIssuer fails closed
//     on incomplete configuration. RequireSession verifies tokens on
//     incoming requests.
//
// Activity sinks:
//   - ActivitySink receives registration, login, confirmation and state
//     change events. Sinks run best-effort (errors are logged) so they never
//     block authentication.
package auth
