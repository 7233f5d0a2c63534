package memstore

// Logger is an observability hook for host applications. The core packages
// never log (spec.md §1 excludes logging from this layer's scope); Store
// calls Logger at points a caller may want visibility into (rotation,
// recovery, fork lifecycle). The zero value is a safe no-op.
type Logger func(event string, fields map[string]any)

func noopLogger(string, map[string]any) {}

func (s *Store) log(event string, fields map[string]any) {
	if s.logger != nil {
		s.logger(event, fields)
	}
}
