// Package scripture turns chapter content into verse units and verse text
// into something a voice can read aloud. It also carries the book catalog
// used to resolve chapter references.
package scripture
