package utils

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"
)

// ReplaceExtension swaps the trailing alphanumeric extension of name for ext.
// A name without one gets ext appended, so the result always ends in ".ext".
func ReplaceExtension(name, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if name == "" {
		name = "image"
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 && i < len(name)-1 && isAlnum(name[i+1:]) {
		return name[:i+1] + ext
	}
	return name + "." + ext
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders n with base-1024 units and at most two decimals,
// e.g. "0 Bytes", "512 Bytes", "1.5 KB", "2.25 MB".
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// Percent returns round(done/total*100); 0 when total is 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// DataURL encodes data as a base64 data URL with the given media type.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
