// Package blob stores uploaded images and hands out stable, non-expiring
// URLs that the API itself serves under /files/.
package blob

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"progress/api/internal/util"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

type Info struct {
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Store interface {
	// Put writes the object and returns its public URL.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, Info, error)
}

// UpdateImageKey is updates/<clientID>/<random>-<filename>. The random part
// keeps two uploads with the same file name apart.
func UpdateImageKey(clientID, filename string) string {
	return path.Join("updates", util.SafeFilename(clientID), util.ShortID(12)+"-"+util.SafeFilename(filename))
}

// ProfileImageKey is users/<userID>/profile-<random><ext>.
func ProfileImageKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(util.SafeFilename(filename)))
	if ext == "" || ext == "." {
		ext = ".jpg"
	}
	return path.Join("users", util.SafeFilename(userID), "profile-"+util.ShortID(12)+ext)
}

// ValidKey rejects keys that are empty, absolute or try to climb out of the
// bucket.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// PublicURL is baseURL + "/files/" + key with each segment escaped.
func PublicURL(baseURL, key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.TrimRight(baseURL, "/") + "/files/" + strings.Join(parts, "/")
}

// IsImage reports whether contentType is an image/* media type.
func IsImage(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return strings.HasPrefix(mediaType, "image/") && len(mediaType) > len("image/")
}
