// Package booth ties the recording controller, the parliament API, the
// realtime channel and the session store into the operator workflow of a
// voting booth: open voting on a motion, give a member the floor, record
// and submit the spoken vote, and follow the live statistics.
package booth
