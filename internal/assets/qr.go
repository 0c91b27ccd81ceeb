package assets

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/ivlev/reelcomposer/internal/source"
)

// QRCodeAsset renders a call-to-action as a QR code PNG and returns it as an
// image asset backed by a data URL.
func QRCodeAsset(cta string, size int) (ImageAsset, error) {
	cta = strings.TrimSpace(cta)
	if cta == "" {
		return ImageAsset{}, fmt.Errorf("empty call to action")
	}
	png, err := qrcode.Encode(cta, qrcode.Medium, size)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("encode qr code: %w", err)
	}
	return ImageAsset{Ref: source.EncodeDataURL("image/png", png)}, nil
}

// IsLink reports whether a call-to-action is worth a QR code.
func IsLink(cta string) bool {
	cta = strings.ToLower(strings.TrimSpace(cta))
	return strings.HasPrefix(cta, "http://") || strings.HasPrefix(cta, "https://") ||
		strings.HasPrefix(cta, "www.")
}
