package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/autopoint-backend/internal/model"
)

var (
	// ErrUnsupportedType is returned for a mime type outside the allow list.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrFileTooLarge is returned when the upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// Upload buckets under the uploads root.
const (
	BucketAvatars         = "avatars"
	BucketPassports       = "passports"
	BucketDrivingLicenses = "driving_licenses"
	BucketMenuItems       = "restaurants/menu_items"
	BucketAdvertisements  = "advertisements"
	BucketGlobalChat      = "global_chat"
)

// URLPrefix is where the static file server exposes the uploads root.
const URLPrefix = "/uploads"

var extByMime = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"audio/wav":       ".wav",
	"application/pdf": ".pdf",
}

// Uploader writes validated files under Dir and maps them to public URLs.
// Allowed gates images; AllowedAttachments gates chat attachments.
type Uploader struct {
	Dir                string
	BaseURL            string
	MaxSize            int64
	Allowed            []string
	AllowedAttachments []string
}

func (u *Uploader) allowed(mime string) bool { return listed(u.Allowed, mime) }

func listed(set []string, mime string) bool {
	for _, a := range set {
		if strings.EqualFold(a, mime) {
			return true
		}
	}
	return false
}

// sniff returns the declared content type, or detects it from the first
// bytes when the client sent none.
func sniff(fh *multipart.FileHeader) (string, error) {
	mime := strings.ToLower(strings.TrimSpace(strings.Split(fh.Header.Get("Content-Type"), ";")[0]))
	if mime != "" && mime != "application/octet-stream" {
		return mime, nil
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	return strings.Split(http.DetectContentType(buf[:n]), ";")[0], nil
}

// SaveImage stores an image into bucket as "<scope>_<uuid-hex><ext>" and
// returns its public URL.
func (u *Uploader) SaveImage(bucket, scope string, fh *multipart.FileHeader) (string, error) {
	mime, err := sniff(fh)
	if err != nil {
		return "", err
	}
	if !u.allowed(mime) {
		return "", ErrUnsupportedType
	}
	return u.save(bucket, scope, mime, fh)
}

// SaveAttachment stores a chat attachment into the images, videos, audio or
// files folder according to its mime family.
func (u *Uploader) SaveAttachment(scope string, fh *multipart.FileHeader) (model.Attachment, error) {
	mime, err := sniff(fh)
	if err != nil {
		return model.Attachment{}, err
	}
	if !listed(u.AllowedAttachments, mime) {
		return model.Attachment{}, ErrUnsupportedType
	}
	folder, kind := "files", model.MessageFile
	switch {
	case strings.HasPrefix(mime, "image/"):
		folder, kind = "images", model.MessageImage
	case strings.HasPrefix(mime, "video/"):
		folder, kind = "videos", model.MessageVideo
	case strings.HasPrefix(mime, "audio/"):
		folder, kind = "audio", model.MessageAudio
	}
	url, err := u.save(path.Join(BucketGlobalChat, folder), scope, mime, fh)
	if err != nil {
		return model.Attachment{}, err
	}
	name := filepath.Base(fh.Filename)
	size := fh.Size
	return model.Attachment{URL: url, Type: kind, Name: &name, Size: &size}, nil
}

func (u *Uploader) save(bucket, scope, mime string, fh *multipart.FileHeader) (string, error) {
	if u.MaxSize > 0 && fh.Size > u.MaxSize {
		return "", ErrFileTooLarge
	}
	// the client's filename never picks the extension
	ext, ok := extByMime[mime]
	if !ok {
		return "", ErrUnsupportedType
	}
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	if scope != "" {
		name = scope + "_" + name
	}

	dir := filepath.Join(u.Dir, filepath.FromSlash(bucket))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	// size is measured while copying since the header can lie
	limit := u.MaxSize
	if limit <= 0 {
		limit = 1 << 62
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > limit {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(filepath.Join(dir, name))
		return "", err
	}
	return u.URLFor(path.Join(bucket, name)), nil
}

// URLFor maps a path relative to the uploads root to its public URL.
func (u *Uploader) URLFor(rel string) string {
	return strings.TrimRight(u.BaseURL, "/") + URLPrefix + "/" + strings.TrimLeft(rel, "/")
}

// DeleteByURL unlinks the file behind a URL produced by this uploader. URLs
// outside BASE_URL/uploads, paths escaping the uploads root and missing
// files are ignored and reported as false.
func (u *Uploader) DeleteByURL(url string) bool {
	prefix := strings.TrimRight(u.BaseURL, "/") + URLPrefix + "/"
	if !strings.HasPrefix(url, prefix) {
		return false
	}
	rel := path.Clean("/" + strings.TrimPrefix(url, prefix))
	if rel == "/" {
		return false
	}
	root, err := filepath.Abs(u.Dir)
	if err != nil {
		return false
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return false
	}
	st, err := os.Stat(full)
	if err != nil || !st.Mode().IsRegular() {
		return false
	}
	return os.Remove(full) == nil
}
