//go:build sqlite_vec && cgo

package rag

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver.
	// vec.Auto() registers it as an auto-loadable extension; the case store
	// keeps its in-process cosine scan as the portable path, so builds
	// without this tag stay functional.
	vec.Auto()
}
