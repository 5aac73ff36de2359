package store

import (
	"fmt"
	"strings"

	"github.com/nasa-gibs/oetime/internal/model"
)

// Projections with a reprojection mirror.
const (
	ProjGeographic  = "epsg4326"
	ProjWebMercator = "epsg3857"
)

// Per-layer key suffixes.
const (
	SuffixDates      = ":dates"
	SuffixExpiration = ":expiration"
	SuffixPeriods    = ":periods"
	SuffixDefault    = ":default"
	SuffixConfig     = ":config"
	SuffixBestConfig = ":best_config"
	SuffixBestOrder  = ":best_order"
	SuffixBestLayer  = ":best_layer"
	SuffixBest       = ":best"
	SuffixCopyDates  = ":copy_dates"
)

// Suffixes lists every per-layer suffix, longest first so that ":best" does
// not shadow ":best_config" when stripping.
var Suffixes = []string{
	SuffixBestConfig, SuffixBestLayer, SuffixBestOrder, SuffixExpiration,
	SuffixCopyDates, SuffixPeriods, SuffixDefault, SuffixConfig, SuffixDates, SuffixBest,
}

// LayerKey joins a projection, an optional tag and a layer name:
// "epsg4326:best:layer:MODIS_Aqua_Aerosol".
func LayerKey(proj, tag, name string) string {
	if tag != "" {
		return proj + ":" + tag + ":layer:" + name
	}
	return proj + ":layer:" + name
}

// SplitLayerKey returns the prefix ("epsg4326:best:layer") and layer name of
// a layer key.
func SplitLayerKey(key string) (prefix, name string, err error) {
	i := strings.LastIndex(key, ":")
	if i <= 0 || i == len(key)-1 {
		return "", "", fmt.Errorf("%w: invalid layer key %q", model.ErrParse, key)
	}
	return key[:i], key[i+1:], nil
}

// LayerName returns the part of key after the last colon.
func LayerName(key string) string {
	return key[strings.LastIndex(key, ":")+1:]
}

// SiblingKey returns the key of layer name under the same prefix as key.
func SiblingKey(key, name string) string {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return name
	}
	return key[:i+1] + name
}

// Projection returns the first segment of key.
func Projection(key string) string {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i]
	}
	return key
}

// MirrorKey returns the EPSG:3857 twin of an EPSG:4326 key.
func MirrorKey(key string) (string, bool) {
	if Projection(key) != ProjGeographic {
		return "", false
	}
	return ProjWebMercator + strings.TrimPrefix(key, ProjGeographic), true
}

// TrimSuffix strips a known per-layer suffix from a store key, returning the
// layer key and whether a suffix was found.
func TrimSuffix(key string) (string, bool) {
	for _, s := range Suffixes {
		if strings.HasSuffix(key, s) {
			return strings.TrimSuffix(key, s), true
		}
	}
	return key, false
}
