// Package realtime maintains the booth's WebSocket connection to the
// parliament backend's event feed.
//
// A Channel is constructed and owned explicitly by the caller and shared
// by every consumer. Frames are JSON text messages of the form
// {"event": name, "data": payload}. Dropped connections are redialed on
// a fixed interval and motion rooms are re-joined.
package realtime
