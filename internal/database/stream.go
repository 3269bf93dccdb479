package database

import (
	"context"
	"fmt"
)

// Stream iterates the raw documents of a Query while holding the
// session's connection. The hold is released on Close or once the stream
// is exhausted.
type Stream struct {
	cur  DocCursor
	s    *Session
	done bool
}

// Next advances to the next document.
func (st *Stream) Next(ctx context.Context) bool {
	if st.done {
		return false
	}
	if st.cur.Next(ctx) {
		return true
	}
	_ = st.Close(ctx)
	return false
}

// Decode decodes the current document into v.
func (st *Stream) Decode(v any) error {
	if err := st.cur.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

// Err returns the error that stopped iteration, if any.
func (st *Stream) Err() error {
	if err := st.cur.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return nil
}

// Close closes the server cursor and releases the connection hold. It is
// safe to call more than once.
func (st *Stream) Close(ctx context.Context) error {
	if st.done {
		return nil
	}
	st.done = true
	err := st.cur.Close(ctx)
	st.s.Release(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return nil
}
