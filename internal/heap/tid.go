package heap

// RowID is the identity of a row inside its table. IDs are handed out from a
// monotonically increasing counter and never reused, so deleting a row never
// changes the identity of any other row.
type RowID uint64
