package scrape

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/nasa-gibs/oetime/internal/model"
)

// keyTimeLayout is the YYYYDDDhhmmss stamp in tile file names.
const keyTimeLayout = "2006002150405"

// Tile data extensions. Anything else, including .idx sidecars, is skipped.
var dataExts = map[string]bool{
	".ppg": true, ".pjg": true, ".pjp": true, ".ptf": true,
	".lerc": true, ".pvt": true, ".mrf": true,
}

// Skip reasons, also used as metric labels.
const (
	ReasonStatic    = "static"
	ReasonSidecar   = "sidecar"
	ReasonExtension = "extension"
	ReasonTimestamp = "timestamp"
	ReasonKey       = "key"
	ReasonFilter    = "filter"
)

// KeyResult is the outcome of mapping one object key.
type KeyResult struct {
	Outcome    model.Outcome
	Projection string
	Layer      string
	Date       string // DateSet member form
	Reason     string
	Err        error
}

// MapKey maps "{proj}/{layer}/{year}/{layer}-{YYYYDDDhhmmss}.{ext}" to its
// projection, layer and date. Keys of static layers (three segments or
// fewer), non-data files, unparseable stamps and keys whose projection or
// layer segment cannot form a layer key are skips. MapKey never returns
// OutcomeFatal.
func MapKey(key string) KeyResult {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) <= 3 {
		return KeyResult{Outcome: model.OutcomeSkip, Reason: ReasonStatic}
	}

	proj, layer, file := parts[0], parts[1], parts[len(parts)-1]
	if proj == "" || layer == "" || strings.Contains(proj, ":") || strings.Contains(layer, ":") {
		return KeyResult{
			Outcome: model.OutcomeSkip,
			Reason:  ReasonKey,
			Err:     fmt.Errorf("%w: key %q does not name a projection and layer", model.ErrParse, key),
		}
	}

	ext := strings.ToLower(path.Ext(file))
	switch {
	case ext == ".idx":
		return KeyResult{Outcome: model.OutcomeSkip, Reason: ReasonSidecar}
	case !dataExts[ext]:
		return KeyResult{Outcome: model.OutcomeSkip, Reason: ReasonExtension}
	}

	stamp := file[strings.LastIndex(file, "-")+1:]
	if i := strings.Index(stamp, "."); i >= 0 {
		stamp = stamp[:i]
	}
	t, err := time.Parse(keyTimeLayout, stamp)
	if err != nil || len(stamp) != len(keyTimeLayout) {
		return KeyResult{
			Outcome: model.OutcomeSkip,
			Reason:  ReasonTimestamp,
			Err:     fmt.Errorf("%w: %s: stamp %q should be YYYYDDDhhmmss", model.ErrParse, file, stamp),
		}
	}

	return KeyResult{
		Outcome:    model.OutcomeOk,
		Projection: proj,
		Layer:      layer,
		Date:       model.FormatTimestamp(t),
	}
}
