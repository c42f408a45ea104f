// Package auth mints and verifies the bearer tokens accepted by the operator API.
//
// Tokens are HS256 JWTs carrying a subject and a role. Roles map statically
// onto permissions, so authorising a request never touches storage:
//   - viewer may read link status and the event journal
//   - operator may additionally publish through the link
package auth
