package port

import "context"

// FileStorage stores uploaded attachments and hands back stable references
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	GetFullPath(relativePath string) string
}
