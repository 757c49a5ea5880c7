// Package image validates uploaded images, renders the small thumbnails
// embedded in chat bubbles, and keeps uploads in memory for previews.
package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	"net/http"
)

const (
	// MaxUploadSize is the maximum accepted upload (10 MiB)
	MaxUploadSize = 10 * 1024 * 1024
	// MaxPixels rejects decompression bombs before a full decode.
	MaxPixels = 50_000_000

	// ContentTypeJPEG and ContentTypePNG are the accepted upload types.
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

var (
	// ErrEmptyUpload indicates no bytes were uploaded
	ErrEmptyUpload = errors.New("uploaded file is empty")
	// ErrImageTooLarge indicates the image exceeds the maximum allowed size
	ErrImageTooLarge = errors.New("image exceeds maximum size")
	// ErrUnsupportedType indicates the upload is neither JPEG nor PNG
	ErrUnsupportedType = errors.New("unsupported image type (only JPEG and PNG are accepted)")
	// ErrInvalidDimensions indicates width or height is not positive or too large
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	// ErrDecode indicates the bytes could not be decoded as an image
	ErrDecode = errors.New("failed to decode image")
)

// Upload is a validated image ready to be handed to OCR and the chat.
type Upload struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	// Digest is the hex SHA-256 of Data; equal digests mean the same image.
	Digest string
	// Thumbnail is a data URI of the downscaled image.
	Thumbnail string
}

// Prepare validates data and derives everything the chat needs from it.
func Prepare(data []byte) (*Upload, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if len(data) > MaxUploadSize {
		return nil, ErrImageTooLarge
	}

	contentType := http.DetectContentType(data)
	if contentType != ContentTypeJPEG && contentType != ContentTypePNG {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedType, contentType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	thumb, err := ThumbnailDataURI(img, ThumbnailSize)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)

	return &Upload{
		Data:        data,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Digest:      hex.EncodeToString(sum[:]),
		Thumbnail:   thumb,
	}, nil
}
