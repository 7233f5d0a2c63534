package segment

// Location pinpoints a record either in an immutable segment file or in the
// WAL tail (spec.md §4.D). NoSegment means "look in the WAL", the on-disk
// equivalent of the spec's segment_number = NONE marker.
type Location struct {
	SegmentNumber uint32
	Offset        int64
}

// NoSegment is the sentinel SegmentNumber for a WAL-resident location.
const NoSegment uint32 = 0

// InWAL reports whether loc refers to the WAL tail rather than a segment.
func (loc Location) InWAL() bool { return loc.SegmentNumber == NoSegment }

// WALLocation builds the Location for a record still living in the WAL.
func WALLocation(offset int64) Location {
	return Location{SegmentNumber: NoSegment, Offset: offset}
}
