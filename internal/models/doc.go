// Package models defines the parliament domain types exchanged with the
// remote voting API: members, motions, votes, verification results and
// aggregate vote statistics.
package models
