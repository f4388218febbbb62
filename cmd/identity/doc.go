// Package identity describes who is acting on an invite: signed-in users supplied by the
// session provider, and guests who join with a self-chosen display name.
//
// It also owns the normalization rules for the identity fields that invites carry
// (email addresses and display names) and the id primitives shared by the module.
package identity
