package trackio

import "github.com/dreamlake-ai/dreamlake-go/internal/model"

// MergeByTimestamp collapses points with exactly equal `_ts` into one,
// with later appends overwriting earlier fields of the same key.
// Group order follows first appearance in points, not sorted `_ts`
// order — the specification fixes persisted order to buffer order,
// not time order. Grounded on
// original_source/src/dreamlake/session.py's _merge_by_timestamp,
// adjusted to preserve first-appearance order instead of sorting by
// timestamp (sorting would violate the "persisted order is insertion
// order" invariant).
func MergeByTimestamp(points []model.DataPoint) []model.DataPoint {
	if len(points) == 0 {
		return nil
	}

	order := make([]float64, 0, len(points))
	groups := make(map[float64]model.DataPoint, len(points))

	for _, p := range points {
		ts := p.Timestamp()
		if existing, ok := groups[ts]; ok {
			for k, v := range p {
				existing[k] = v
			}
		} else {
			groups[ts] = p.Clone()
			order = append(order, ts)
		}
	}

	merged := make([]model.DataPoint, len(order))
	for i, ts := range order {
		merged[i] = groups[ts]
	}
	return merged
}
