package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// Order places a task in the update sequence. Lower values run earlier,
// subject to dependencies.
type Order int32

// OrderStep is the distance between two adjacent bands.
const OrderStep Order = 32768

// System bands. Only system tasks may use an order at or below OrderSysLast.
const (
	OrderSysRoot   Order = 0
	OrderSysFirst  Order = 1 * OrderStep
	OrderSysSecond Order = 2 * OrderStep
	OrderSysThird  Order = 3 * OrderStep
	OrderSysFourth Order = 4 * OrderStep
	OrderSysFifth  Order = 5 * OrderStep
	OrderSysLast   Order = 6 * OrderStep
)

// User bands.
const (
	OrderFirst     Order = 7 * OrderStep
	OrderUltraHigh Order = 8 * OrderStep
	OrderVeryHigh  Order = 9 * OrderStep
	OrderHigh      Order = 10 * OrderStep
	OrderNormal    Order = 11 * OrderStep
	OrderLow       Order = 12 * OrderStep
	OrderVeryLow   Order = 13 * OrderStep
	OrderUltraLow  Order = 14 * OrderStep
	OrderLast      Order = 15 * OrderStep
)

var orderNames = []struct {
	name  string
	order Order
}{
	{"sys_root", OrderSysRoot},
	{"sys_first", OrderSysFirst},
	{"sys_second", OrderSysSecond},
	{"sys_third", OrderSysThird},
	{"sys_fourth", OrderSysFourth},
	{"sys_fifth", OrderSysFifth},
	{"sys_last", OrderSysLast},
	{"first", OrderFirst},
	{"ultra_high", OrderUltraHigh},
	{"very_high", OrderVeryHigh},
	{"high", OrderHigh},
	{"normal", OrderNormal},
	{"low", OrderLow},
	{"very_low", OrderVeryLow},
	{"ultra_low", OrderUltraLow},
	{"last", OrderLast},
}

// IsSystem reports whether o falls in the reserved system range.
func (o Order) IsSystem() bool { return o <= OrderSysLast }

func (o Order) String() string {
	for _, n := range orderNames {
		if n.order == o {
			return n.name
		}
	}
	return strconv.Itoa(int(o))
}

// ParseOrder accepts a band name ("normal", "very_high", ...), a band name with
// an offset ("high+3", "low-1"), or a plain integer.
func ParseOrder(s string) (Order, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return OrderNormal, nil
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return Order(n), nil
	}

	base, offset := s, 0
	if i := strings.IndexAny(s, "+-"); i > 0 {
		n, err := strconv.Atoi(s[i:])
		if err != nil {
			return 0, fmt.Errorf("invalid order %q: %w", s, err)
		}
		base, offset = s[:i], n
	}
	for _, n := range orderNames {
		if n.name == base {
			return n.order + Order(offset), nil
		}
	}
	return 0, fmt.Errorf("invalid order %q", s)
}
