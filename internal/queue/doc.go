// Package queue holds the ordered list of chapters waiting to be spoken and
// the playlists they can be loaded from.
package queue
