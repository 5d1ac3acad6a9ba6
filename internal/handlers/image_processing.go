package handlers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// maxPhotoBytes caps a single photo upload.
const maxPhotoBytes = 10 * 1024 * 1024

var errPhotoTooLarge = fmt.Errorf("file too large (max %dMB)", maxPhotoBytes/(1024*1024))

// readPhoto reads a multipart photo up to the size cap.
func readPhoto(file multipart.File) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return nil, errPhotoTooLarge
	}
	return data, nil
}

// photoContentType prefers the declared type and falls back to sniffing.
func photoContentType(header *multipart.FileHeader, data []byte) string {
	if header != nil {
		if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
			return ct
		}
	}
	return http.DetectContentType(data)
}

// photoName names the upload after the side, keeping the original extension.
func photoName(side string, header *multipart.FileHeader) string {
	ext := ".jpg"
	if header != nil {
		if e := strings.ToLower(filepath.Ext(header.Filename)); e != "" {
			ext = e
		}
	}
	return side + ext
}

func getImageDimensions(data []byte) (int, int, error) {
	img, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return img.Width, img.Height, nil
}
