package domain

import "context"

// TextExtractor turns an uploaded file into plain text.
// fileType is the lower-cased extension without the dot ("docx", "txt").
type TextExtractor interface {
	Extract(ctx context.Context, path, fileType string) (string, error)
}
