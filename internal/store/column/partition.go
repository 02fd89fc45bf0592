package column

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"BarPull/internal/domain/repository"
	"BarPull/internal/errs"
)

// Partition naming is the on-disk contract shared with every consumer of the
// store:
//
//	dir:  {instrumentID}-{timeframeSpec}-{EXTERNAL|INTERNAL}/
//	file: {start}_{end}.parquet
//
// Timestamps are ISO 8601 without colons, nanosecond precision, UTC. Real
// fetch boundaries rarely land on whole seconds, so parsers accept any
// nine-digit nanosecond suffix.
const (
	partitionExt = ".parquet"
	// Trailing Z is a literal; timestamps are always UTC.
	timestampLayout = "2006-01-02T15-04-05.000000000Z"
)

// FormatPartitionDir renders the directory name for a series.
func FormatPartitionDir(instrumentID, timeframeSpec string, origin repository.PartitionOrigin) string {
	return fmt.Sprintf("%s-%s-%s", instrumentID, timeframeSpec, origin)
}

// FormatPartitionFile renders the file name covering [start, end].
func FormatPartitionFile(start, end time.Time) string {
	return start.UTC().Format(timestampLayout) + "_" + end.UTC().Format(timestampLayout) + partitionExt
}

// ParsePartitionDir parses a partition directory name. The timeframe spec is
// always three dash-separated segments and the origin one, so the name is
// consumed from the right; this keeps instrument ids containing dashes
// (BRK-B.XNYS) parseable.
func ParsePartitionDir(name string) (instrumentID, timeframeSpec string, origin repository.PartitionOrigin, err error) {
	parts := strings.Split(name, "-")
	if len(parts) < 5 {
		return "", "", "", &errs.CatalogCorruptionError{Path: name, Reason: "too few segments for {instrument}-{timeframe}-{origin}"}
	}
	origin = repository.PartitionOrigin(parts[len(parts)-1])
	if origin != repository.OriginExternal && origin != repository.OriginInternal {
		return "", "", "", &errs.CatalogCorruptionError{Path: name, Reason: fmt.Sprintf("unknown origin %q", parts[len(parts)-1])}
	}
	tfParts := parts[len(parts)-4 : len(parts)-1]
	timeframeSpec = strings.Join(tfParts, "-")
	if _, perr := repository.ParseTimeframeSpec(timeframeSpec); perr != nil {
		return "", "", "", &errs.CatalogCorruptionError{Path: name, Reason: perr.Error()}
	}
	instrumentID = strings.Join(parts[:len(parts)-4], "-")
	if instrumentID == "" {
		return "", "", "", &errs.CatalogCorruptionError{Path: name, Reason: "empty instrument id"}
	}
	return instrumentID, timeframeSpec, origin, nil
}

// ParsePartitionFile parses a partition file name into its covered range.
func ParsePartitionFile(name string) (start, end time.Time, err error) {
	base := strings.TrimSuffix(name, partitionExt)
	if base == name {
		return time.Time{}, time.Time{}, &errs.CatalogCorruptionError{Path: name, Reason: "missing " + partitionExt + " extension"}
	}
	parts := strings.Split(base, "_")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, &errs.CatalogCorruptionError{Path: name, Reason: "want {start}_{end}" + partitionExt}
	}
	start, err = time.Parse(timestampLayout, parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, &errs.CatalogCorruptionError{Path: name, Reason: "bad start timestamp: " + err.Error()}
	}
	end, err = time.Parse(timestampLayout, parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, &errs.CatalogCorruptionError{Path: name, Reason: "bad end timestamp: " + err.Error()}
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, &errs.CatalogCorruptionError{Path: name, Reason: "start after end"}
	}
	return start.UTC(), end.UTC(), nil
}

// ParsePartitionPath combines directory and file parsing for one path.
func ParsePartitionPath(path string) (repository.PartitionMeta, error) {
	dir := filepath.Base(filepath.Dir(path))
	instrumentID, tf, origin, err := ParsePartitionDir(dir)
	if err != nil {
		return repository.PartitionMeta{}, err
	}
	start, end, err := ParsePartitionFile(filepath.Base(path))
	if err != nil {
		return repository.PartitionMeta{}, err
	}
	return repository.PartitionMeta{
		InstrumentID:  instrumentID,
		TimeframeSpec: tf,
		Origin:        origin,
		Start:         start,
		End:           end,
		Path:          path,
	}, nil
}
