package reconcile

// heldGroups collects the rows of a window by group key, keeping the order in
// which keys first appear.
type heldGroups[TIn any] struct {
	key       func(TIn) string
	order     []string
	rows      map[string][]TIn
	batchSize int
}

func newHeldGroups[TIn any](key func(TIn) string) *heldGroups[TIn] {
	return &heldGroups[TIn]{key: key, rows: make(map[string][]TIn)}
}

func (h *heldGroups[TIn]) add(page []TIn) {
	if len(page) > h.batchSize {
		h.batchSize = len(page)
	}
	for _, row := range page {
		k := h.key(row)
		if _, seen := h.rows[k]; !seen {
			h.order = append(h.order, k)
		}
		h.rows[k] = append(h.rows[k], row)
	}
}

// flush hands the held rows to process in batches of about the largest page
// seen. A group is never split across batches.
func (h *heldGroups[TIn]) flush(process func([]TIn) error) error {
	var batch []TIn
	for _, k := range h.order {
		batch = append(batch, h.rows[k]...)
		delete(h.rows, k)
		if len(batch) >= h.batchSize {
			if err := process(batch); err != nil {
				return err
			}
			batch = nil
		}
	}
	h.order = nil
	if len(batch) > 0 {
		return process(batch)
	}
	return nil
}
