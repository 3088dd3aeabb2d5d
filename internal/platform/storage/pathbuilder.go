package storage

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const imagesPrefix = "images"

// ImagePath names an uploaded image: images/<epoch ms>-<sanitised file name>. A name that
// sanitises to nothing but its extension is replaced by a random one.
func ImagePath(now time.Time, fileName string) (string, error) {
	name, err := sanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	return path.Join(imagesPrefix, strconv.FormatInt(now.UnixMilli(), 10)+"-"+name), nil
}

// PublicPath is the site-relative path of an object, e.g. /images/1700000000000-logo.png.
func PublicPath(object string) string {
	return "/" + strings.TrimPrefix(object, "/")
}

func sanitizeFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: file name is required")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: file name contains invalid traversal sequence")
	}
	value = path.Base(strings.ReplaceAll(value, "\\", "/"))

	ext := strings.ToLower(path.Ext(value))
	stem := strings.TrimSuffix(value, path.Ext(value))
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	clean := strings.Trim(b.String(), "-.")
	if clean == "" {
		clean = uuid.NewString()
	}
	return clean + ext, nil
}
