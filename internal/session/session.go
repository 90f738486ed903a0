// Package session manages authenticated API sessions. A session maps an
// opaque bearer token to a user ID and is stored as a Redis hash with a
// sliding TTL.
package session
