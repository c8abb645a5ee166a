//go:build !linux && !darwin
// +build !linux,!darwin

package netconn

// applyPlatformOptions is a no-op on platforms without the optimizations
// above (BSD variants, windows).
func applyPlatformOptions(fd int, cfg *TuneConfig) {}

// applyListenerOptions is a no-op on platforms without the optimizations
// above.
func applyListenerOptions(fd int, cfg *TuneConfig) error { return nil }

// SetQuickAck is a no-op on platforms without TCP_QUICKACK.
func SetQuickAck(fd int) error { return nil }
