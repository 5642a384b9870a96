// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvpb

// Consistency selects the read guarantee level for a Get.
type Consistency int

const (
	// ConsistencyUnset defers to the table's configured default.
	ConsistencyUnset Consistency = iota
	// ConsistencyStrong requires the primary replica.
	ConsistencyStrong
	// ConsistencyTimeline may read from any replica, racing them under a
	// time budget. Reads may be stale.
	ConsistencyTimeline
)

func (c Consistency) String() string {
	switch c {
	case ConsistencyUnset:
		return "UNSET"
	case ConsistencyStrong:
		return "STRONG"
	case ConsistencyTimeline:
		return "TIMELINE"
	default:
		return "UNKNOWN"
	}
}

// CompareOp is the comparison operator of a conditional mutation.
type CompareOp int

const (
	CompareLess CompareOp = iota
	CompareLessOrEqual
	CompareEqual
	CompareNotEqual
	CompareGreaterOrEqual
	CompareGreater
)

func (op CompareOp) String() string {
	switch op {
	case CompareLess:
		return "LESS"
	case CompareLessOrEqual:
		return "LESS_OR_EQUAL"
	case CompareEqual:
		return "EQUAL"
	case CompareNotEqual:
		return "NOT_EQUAL"
	case CompareGreaterOrEqual:
		return "GREATER_OR_EQUAL"
	case CompareGreater:
		return "GREATER"
	default:
		return "UNKNOWN"
	}
}

// Nonce makes a non-idempotent mutation safe to retry: the server detects a
// replayed (Group, Sequence) pair and does not re-apply the effect. A nonce
// is generated once per logical mutation attempt and reused across all
// retries of that attempt.
type Nonce struct {
	Group    int64
	Sequence int64
}

// IsSet returns whether the nonce was assigned.
func (n Nonce) IsSet() bool { return n != Nonce{} }

// Action is implemented by every operation that is routed by a single row
// key.
type Action interface {
	Row() Key
}

// Mutation is an Action that changes row state. Put, Delete, Append and
// Increment implement it.
type Mutation interface {
	Action
	mutation()
}

// Cell is one column value within a row.
type Cell struct {
	Family    []byte
	Qualifier []byte
	Value     []byte
}

// Size returns the encoded footprint of the cell, used for write-buffer
// accounting and max-value-size validation.
func (c Cell) Size() int { return len(c.Family) + len(c.Qualifier) + len(c.Value) }

// Get reads a single row.
type Get struct {
	RowKey Key
	// ExistenceOnly asks the server to report only whether the row exists.
	ExistenceOnly bool
	// Consistency selects the read path; ConsistencyUnset defers to the
	// table default.
	Consistency Consistency
}

func (g *Get) Row() Key { return g.RowKey }

// Clone returns a shallow copy. Callers that need to adjust request flags
// must clone first; requests owned by the application are never mutated in
// place.
func (g *Get) Clone() *Get {
	c := *g
	return &c
}

// Put writes one or more cells to a single row.
type Put struct {
	RowKey Key
	Cells  []Cell
}

func (p *Put) Row() Key    { return p.RowKey }
func (p *Put) mutation()   {}
func (p *Put) Empty() bool { return len(p.Cells) == 0 }

// Add appends a cell and returns the receiver for chaining.
func (p *Put) Add(family, qualifier, value []byte) *Put {
	p.Cells = append(p.Cells, Cell{Family: family, Qualifier: qualifier, Value: value})
	return p
}

// Size returns the accumulated cell footprint, used for write-buffer
// accounting.
func (p *Put) Size() int {
	n := len(p.RowKey)
	for _, c := range p.Cells {
		n += c.Size()
	}
	return n
}

// Delete removes a whole row, or only the listed cells if any are given.
type Delete struct {
	RowKey Key
	Cells  []Cell
}

func (d *Delete) Row() Key  { return d.RowKey }
func (d *Delete) mutation() {}

// Add restricts the delete to a specific column and returns the receiver.
func (d *Delete) Add(family, qualifier []byte) *Delete {
	d.Cells = append(d.Cells, Cell{Family: family, Qualifier: qualifier})
	return d
}

// Append atomically appends values to existing cells of a single row.
// Appends are not idempotent and carry a nonce on the wire.
type Append struct {
	RowKey Key
	Cells  []Cell
}

func (a *Append) Row() Key  { return a.RowKey }
func (a *Append) mutation() {}

// Add appends a cell and returns the receiver for chaining.
func (a *Append) Add(family, qualifier, value []byte) *Append {
	a.Cells = append(a.Cells, Cell{Family: family, Qualifier: qualifier, Value: value})
	return a
}

// IncrementColumn is one column of an Increment.
type IncrementColumn struct {
	Family    []byte
	Qualifier []byte
	Amount    int64
}

// Increment atomically adds amounts to numeric cells of a single row.
// Increments are not idempotent and carry a nonce on the wire.
type Increment struct {
	RowKey  Key
	Columns []IncrementColumn
}

func (i *Increment) Row() Key  { return i.RowKey }
func (i *Increment) mutation() {}

// AddColumn appends a column and returns the receiver for chaining.
func (i *Increment) AddColumn(family, qualifier []byte, amount int64) *Increment {
	i.Columns = append(i.Columns, IncrementColumn{Family: family, Qualifier: qualifier, Amount: amount})
	return i
}

// RowMutations is an ordered list of Puts and Deletes against one row,
// applied atomically by the server: all sub-mutations take effect or none
// do.
type RowMutations struct {
	RowKey    Key
	Mutations []Mutation
}

// NewRowMutations returns an empty atomic mutation list for the given row.
func NewRowMutations(row Key) *RowMutations {
	return &RowMutations{RowKey: row}
}

func (rm *RowMutations) Row() Key { return rm.RowKey }

// AddPut appends a put. The put's row must match the RowMutations row.
func (rm *RowMutations) AddPut(p *Put) error {
	if !p.RowKey.Equal(rm.RowKey) {
		return NewInvalidArgumentf("put row %s does not match row mutations row %s", p.RowKey, rm.RowKey)
	}
	rm.Mutations = append(rm.Mutations, p)
	return nil
}

// AddDelete appends a delete. The delete's row must match the RowMutations
// row.
func (rm *RowMutations) AddDelete(d *Delete) error {
	if !d.RowKey.Equal(rm.RowKey) {
		return NewInvalidArgumentf("delete row %s does not match row mutations row %s", d.RowKey, rm.RowKey)
	}
	rm.Mutations = append(rm.Mutations, d)
	return nil
}

// CoprocessorExec is one per-region remote procedure execution, produced by
// fanning a row-key range out over its covering regions.
type CoprocessorExec struct {
	RegionName []byte
	RowKey     Key
	// Method names the server-side procedure.
	Method string
	// Request is the marshaled procedure request payload.
	Request []byte
}

func (e *CoprocessorExec) Row() Key { return e.RowKey }

// Condition guards a conditional mutation: the mutation is applied iff the
// current value of (RowKey, Family, Qualifier) compares to Value under Op.
type Condition struct {
	RowKey    Key
	Family    []byte
	Qualifier []byte
	Op        CompareOp
	Value     []byte
}
