package availability

import (
	"sort"
	"time"
)

// GenerateSlots subtracts the booked intervals from the working intervals
// and returns the free slots sorted by start time.
//
// With a positive slotDuration every free stretch is cut into contiguous
// slots of that length starting at the stretch's beginning; a tail shorter
// than one slot is dropped. With a zero slotDuration each working interval
// is a single slot and is offered only if nothing booked touches it.
//
// booked must only contain intervals of non-canceled appointments.
func GenerateSlots(intervals []WorkingInterval, booked []Interval, slotDuration time.Duration) []TimeSlot {
	slotDuration = slotDuration.Truncate(time.Minute)

	busy := make([]Interval, len(booked))
	copy(busy, booked)
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start < busy[j].Start })

	slots := make([]TimeSlot, 0)
	for _, wi := range intervals {
		if wi.Start >= wi.End {
			continue
		}
		if slotDuration <= 0 {
			if !overlapsAny(wi, busy) {
				slots = append(slots, wi)
			}
			continue
		}
		for _, free := range subtract(wi, busy) {
			for start := free.Start; start.Add(slotDuration) <= free.End; start = start.Add(slotDuration) {
				slots = append(slots, TimeSlot{Start: start, End: start.Add(slotDuration)})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots
}

// ContainsSlot reports whether want is exactly one of slots.
func ContainsSlot(slots []TimeSlot, want TimeSlot) bool {
	for _, s := range slots {
		if s == want {
			return true
		}
	}
	return false
}

// subtract returns the parts of iv not covered by busy, which must be
// sorted by start.
func subtract(iv Interval, busy []Interval) []Interval {
	var free []Interval
	cursor := iv.Start
	for _, b := range busy {
		if b.Start >= iv.End {
			break
		}
		if b.End <= cursor {
			continue
		}
		if b.Start > cursor {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		cursor = b.End
		if cursor >= iv.End {
			return free
		}
	}
	if cursor < iv.End {
		free = append(free, Interval{Start: cursor, End: iv.End})
	}
	return free
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
