package avatar

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// URL resolves the avatar shown for an account: an explicitly configured
// image URL wins, then Gravatar derived from the email, then the placeholder
// when Gravatar is disabled.
func URL(imageURL, email string, gravatarEnabled bool, placeholder string) string {
	if imageURL != "" {
		return imageURL
	}

	if gravatarEnabled && email != "" {
		return gravatarURL(email)
	}

	return placeholder
}

func gravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))

	return fmt.Sprintf("//gravatar.com/avatar/%s?s=270&d=identicon", hex.EncodeToString(sum[:]))
}
