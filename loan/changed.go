package loan

// ChangedTransactionDetail is the output of a full reprocessing pass: which
// persisted transactions were re-derived differently, and what replaces them.
// The caller reverses each original and inserts its replacement, inside one
// persistence transaction.
type ChangedTransactionDetail struct {
	mappings map[TransactionID]*Transaction
	order    []TransactionID
}

func NewChangedTransactionDetail() *ChangedTransactionDetail {
	return &ChangedTransactionDetail{mappings: make(map[TransactionID]*Transaction)}
}

// Add records that original is replaced by replacement.
func (d *ChangedTransactionDetail) Add(original TransactionID, replacement *Transaction) {
	if _, exists := d.mappings[original]; !exists {
		d.order = append(d.order, original)
	}
	d.mappings[original] = replacement
}

// Get returns the replacement for an original ID.
func (d *ChangedTransactionDetail) Get(original TransactionID) (*Transaction, bool) {
	tx, ok := d.mappings[original]
	return tx, ok
}

func (d *ChangedTransactionDetail) Len() int      { return len(d.order) }
func (d *ChangedTransactionDetail) IsEmpty() bool { return len(d.order) == 0 }

// OriginalIDs returns the replaced IDs in the order they were detected.
func (d *ChangedTransactionDetail) OriginalIDs() []TransactionID {
	return append([]TransactionID(nil), d.order...)
}

// NewTransactionMappings returns a copy of the original-ID → replacement map.
func (d *ChangedTransactionDetail) NewTransactionMappings() map[TransactionID]*Transaction {
	out := make(map[TransactionID]*Transaction, len(d.mappings))
	for id, tx := range d.mappings {
		out[id] = tx
	}
	return out
}
