// Package pathutil provides path helpers for building watch patterns.
//
// Glob-style patterns always use forward slashes regardless of platform,
// so paths are normalized before they are combined with a glob.
package pathutil

import "strings"

// Normalize converts a filesystem path to forward-slash form by replacing
// every backslash with a forward slash. It does not collapse repeated
// separators, resolve "." or "..", or validate the path.
func Normalize(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// WatchPattern joins a root directory and a glob into a single
// forward-slash pattern suitable for path.Match.
func WatchPattern(root, glob string) string {
	root = strings.TrimSuffix(Normalize(root), "/")
	glob = strings.TrimPrefix(Normalize(glob), "/")
	if root == "" {
		return glob
	}
	return root + "/" + glob
}
