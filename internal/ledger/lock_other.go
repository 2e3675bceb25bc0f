//go:build !unix

package ledger

import "os"

// Only the in-process mutex serializes appends on these platforms.
func lockFile(f *os.File, exclusive bool) error { return nil }

func unlockFile(f *os.File) error { return nil }
