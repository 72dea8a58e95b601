package service

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autopoint-backend/internal/model"
)

// fileHeader builds a parsed multipart part the way echo hands it over.
func fileHeader(t *testing.T, name, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func newUploader(t *testing.T) *Uploader {
	return &Uploader{
		Dir:                t.TempDir(),
		BaseURL:            "http://cdn.test/",
		MaxSize:            64,
		Allowed:            []string{"image/jpeg", "image/png"},
		AllowedAttachments: []string{"image/jpeg", "image/png", "video/mp4", "audio/mpeg",
			"application/pdf", "image/svg+xml"},
	}
}

func TestSaveImage(t *testing.T) {
	u := newUploader(t)
	url, err := u.SaveImage(BucketAvatars, "7", fileHeader(t, "me.png", "image/png", pngHeader))
	require.NoError(t, err)
	assert.Regexp(t, `^http://cdn\.test/uploads/avatars/7_[0-9a-f]{32}\.png$`, url)

	rel := strings.TrimPrefix(url, "http://cdn.test/uploads/")
	data, err := os.ReadFile(filepath.Join(u.Dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	assert.True(t, u.DeleteByURL(url))
	assert.False(t, u.DeleteByURL(url), "second delete finds nothing")
}

func TestSaveImageSniffsMissingType(t *testing.T) {
	u := newUploader(t)
	url, err := u.SaveImage(BucketAdvertisements, "ad", fileHeader(t, "blob", "", pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".png"))
}

func TestSaveImageRejects(t *testing.T) {
	u := newUploader(t)

	_, err := u.SaveImage(BucketAvatars, "1", fileHeader(t, "a.gif", "image/gif", []byte("GIF89a")))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = u.SaveImage(BucketAvatars, "1", fileHeader(t, "big.png", "image/png", bytes.Repeat([]byte{1}, 65)))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	entries, _ := os.ReadDir(filepath.Join(u.Dir, BucketAvatars))
	assert.Empty(t, entries, "rejected uploads leave no files")
}

func TestSaveAttachmentFolders(t *testing.T) {
	u := newUploader(t)
	cases := []struct {
		mime   string
		folder string
		kind   string
	}{
		{"image/png", "images", model.MessageImage},
		{"video/mp4", "videos", model.MessageVideo},
		{"audio/mpeg", "audio", model.MessageAudio},
		{"application/pdf", "files", model.MessageFile},
	}
	for _, tc := range cases {
		t.Run(tc.folder, func(t *testing.T) {
			att, err := u.SaveAttachment("5", fileHeader(t, "x.bin", tc.mime, []byte("data")))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, att.Type)
			assert.Contains(t, att.URL, "/uploads/global_chat/"+tc.folder+"/5_")
			require.NotNil(t, att.Name)
			assert.Equal(t, "x.bin", *att.Name)
			require.NotNil(t, att.Size)
			assert.Equal(t, int64(4), *att.Size)
		})
	}

	t.Run("markup is refused", func(t *testing.T) {
		_, err := u.SaveAttachment("7", fileHeader(t, "x.html", "text/html", []byte("<script>alert(1)</script>")))
		assert.ErrorIs(t, err, ErrUnsupportedType)
		_, err = u.SaveAttachment("7", fileHeader(t, "x.html", "", []byte("<html><script>alert(1)</script>")))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("extension comes from the type", func(t *testing.T) {
		att, err := u.SaveAttachment("7", fileHeader(t, "clip.html", "video/mp4", []byte("data")))
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(att.URL, ".mp4"), att.URL)
		// allowed but with no known extension
		_, err = u.SaveAttachment("7", fileHeader(t, "x.svg", "image/svg+xml", []byte("<svg/>")))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	entries, _ := os.ReadDir(filepath.Join(u.Dir, BucketGlobalChat, "files"))
	for _, e := range entries {
		assert.NotEqual(t, ".html", filepath.Ext(e.Name()))
	}
}

func TestDeleteByURLStaysInsideRoot(t *testing.T) {
	u := newUploader(t)
	outside := filepath.Join(filepath.Dir(u.Dir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
	t.Cleanup(func() { _ = os.Remove(outside) })

	assert.False(t, u.DeleteByURL("http://cdn.test/uploads/../secret.txt"))
	assert.False(t, u.DeleteByURL("http://elsewhere/uploads/avatars/a.png"))
	assert.False(t, u.DeleteByURL("http://cdn.test/uploads/"))
	_, err := os.Stat(outside)
	assert.NoError(t, err)
}
