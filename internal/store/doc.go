// Package store keeps the listener's state between runs: settings and the
// queue in local files, playlists on the reader service or on disk.
package store
