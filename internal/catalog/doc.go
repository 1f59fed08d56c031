// Package catalog owns content types, content rows and content files, and
// imports originals dropped into the content root.
//
// Ingest mirrors the on-disk convention: a loose file in <root>/<type>/ is
// moved to <type>/<title>/original/<file>; series episodes live under
// <root>/series/<title>/s<N>/ and move into s<N>/original/. Every new file is
// queued as pending for the processing worker.
package catalog
