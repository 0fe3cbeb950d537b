package lifecycle

import "sort"

// lockAllOrRollback attempts to lock every item id in deterministic
// (ascending) order. On any failure it unlocks every id it had already
// acquired and returns false, so the caller never ends up with an
// orphaned partial lock set.
func (c *Coordinator) lockAllOrRollback(itemIDs []int64) (locked []int64, ok bool, err error) {
	ordered := make([]int64, len(itemIDs))
	copy(ordered, itemIDs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	acquired := make([]int64, 0, len(ordered))
	for _, id := range ordered {
		got, lockErr := c.store.TryLockItem(id)
		if lockErr != nil {
			c.unlockAll(acquired)
			return nil, false, lockErr
		}
		if !got {
			c.unlockAll(acquired)
			return nil, false, nil
		}
		acquired = append(acquired, id)
	}
	return acquired, true, nil
}

// unlockAll unconditionally releases every item in the list, logging
// (not failing) on individual errors since this runs on an already-failed
// path.
func (c *Coordinator) unlockAll(itemIDs []int64) {
	for _, id := range itemIDs {
		if err := c.store.UnlockItem(id); err != nil {
			c.log.Error("failed to unlock item during rollback", "item", id, "err", err)
		}
	}
}
