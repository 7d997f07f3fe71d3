package fieldsync

// Compressor shrinks captured content before it is stored.
// Implementations return the input unchanged for content they do not handle.
type Compressor interface {
	Compress(data []byte, contentType string) ([]byte, string, error)
}
