/*
Package session holds the booth's live voting session state.

A Store tracks the member currently speaking, the motion under vote,
whether voting is open, and the set of members who already voted. All
changes go through Store methods, each a single transition under one lock.

# Speaking queue

Only one member speaks at a time. SetActiveMember accepts a member only
while voting is active, nobody else holds the floor, and the member has
not voted yet; otherwise it is a no-op. AddVotedMember records a vote and
releases the floor in the same transition, so a member can never be
recorded twice.

# Persistence

State is saved after every transition through a Storage keyed by
Namespace. The saved Snapshot lists voted members as a sorted slice; the
Store keeps them as a set and converts at the boundary:

	store := session.NewStore(storage, m, logger)
	if err := store.Restore(ctx); err != nil {
		logger.Warn("Could not restore session", slog.String("error", err.Error()))
	}

FileStorage writes one JSON document per namespace. SQLiteStorage keeps
snapshots in a single table and suits kiosks that already ship a database
file.
*/
package session
