//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec as an auto-loadable extension. Builds without the
	// tag skip this; detectVecExtension then reports the module missing and
	// retrieval uses the hilbert-prefiltered exact path.
	vec.Auto()
}
