package utils

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const (
	QRCodeMinSize     = 128
	QRCodeMaxSize     = 1024
	QRCodeDefaultSize = 256
)

// GenerateQRCodePNG renders content as a PNG QR code. size is clamped to
// [QRCodeMinSize, QRCodeMaxSize]; 0 picks the default.
func GenerateQRCodePNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("empty QR content")
	}
	switch {
	case size == 0:
		size = QRCodeDefaultSize
	case size < QRCodeMinSize:
		size = QRCodeMinSize
	case size > QRCodeMaxSize:
		size = QRCodeMaxSize
	}

	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}
