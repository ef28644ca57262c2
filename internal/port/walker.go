package port

// FileWalker enumerates ingestable files under a directory root.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

// FileInfo describes one candidate file found by a walker.
type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}
