package domain

// DailyTotal is the cash cut for one civil day: the sum and count of settled tickets.
type DailyTotal struct {
	Day   string
	Total int64
	Count int64
}
