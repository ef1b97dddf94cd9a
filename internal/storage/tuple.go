package storage

// Tuple is one row of column values, ordered by column position.
type Tuple []any

func (t Tuple) Copy() Tuple {
	if t == nil {
		return nil
	}
	c := make(Tuple, len(t))
	copy(c, t)
	return c
}

func (t Tuple) Len() int { return len(t) }

type Record struct {
	ID     int64
	Values Tuple
}
