package models

import "strconv"

// Money is an amount in the smallest currency unit.
type Money int64

func (m Money) String() string {
	return strconv.FormatInt(int64(m), 10)
}
