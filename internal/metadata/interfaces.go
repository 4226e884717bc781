package metadata

// OptimizedMark is stamped into the EXIF Software tag of files this tool rewrote.
const OptimizedMark = "IOptimizer"

// Reader reads the metadata the optimizer cares about.
type Reader interface {
	// Software returns the EXIF Software tag, or an error when the file has none.
	Software(filePath string) (string, error)
	// IsOptimized reports whether the file carries OptimizedMark.
	IsOptimized(filePath string) bool
}

// Dumper returns every tag it can read, keyed by tag name.
type Dumper interface {
	Dump(filePath string) (map[string]interface{}, error)
}
