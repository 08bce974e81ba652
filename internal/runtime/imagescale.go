package runtime

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// maxImageDimension bounds the longest edge of an image before it is
// considered for dedup/hand-off, trading fidelity for host memory and
// chat-platform upload limits.
const maxImageDimension = 1600

// DownscaleIfOversized decodes img, and if either dimension exceeds
// maxImageDimension, re-encodes a resized copy as JPEG. Decode failures or
// already-small images are returned unchanged — this is a best-effort
// optimization, never a correctness requirement.
func DownscaleIfOversized(img ImageData) ImageData {
	raw, err := base64.StdEncoding.DecodeString(img.Base64)
	if err != nil {
		return img
	}
	decoded, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return img
	}
	b := decoded.Bounds()
	if b.Dx() <= maxImageDimension && b.Dy() <= maxImageDimension {
		return img
	}

	resized := imaging.Fit(decoded, maxImageDimension, maxImageDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return img
	}
	return ImageData{
		MediaType: "image/jpeg",
		Base64:    base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
}
