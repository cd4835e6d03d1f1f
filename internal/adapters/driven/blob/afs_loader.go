package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/viant/afs"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Ensure Loader implements SourceLoader
var _ driven.SourceLoader = (*Loader)(nil)

// Loader reads document bytes from a job's source location through the
// abstract file storage service, so local paths, file:// and cloud URLs
// (s3://, gs://, mem://) all resolve the same way.
type Loader struct {
	fs afs.Service
}

// NewLoader constructs a source loader backed by the default storage service.
func NewLoader() *Loader {
	return &Loader{fs: afs.New()}
}

// Load reads the full contents of a source URI. A missing or unreadable
// source maps to domain.ErrSourceMissing so the caller can classify the
// failure as unrecoverable.
func (l *Loader) Load(ctx context.Context, sourceURI string) ([]byte, error) {
	sourceURI = strings.TrimSpace(sourceURI)
	if sourceURI == "" {
		return nil, fmt.Errorf("%w: empty source uri", domain.ErrSourceMissing)
	}

	data, err := l.fs.DownloadWithURL(ctx, sourceURI)
	if err != nil {
		if os.IsNotExist(err) || isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSourceMissing, sourceURI)
		}
		return nil, fmt.Errorf("download %s: %w", sourceURI, err)
	}
	return data, nil
}

// isNotFound catches backends that report missing objects as plain errors
// rather than fs.ErrNotExist.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not exist") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no such file")
}
