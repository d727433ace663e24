package query

import "time"

// Observer receives engine events, typically for metrics
type Observer interface {
	RowProcessed(archive string)
	RowSkipped(archive string)
	DecodeFailed(archive, field string)
	QueryFinished(archive, kind, status string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) RowProcessed(string)                                 {}
func (nopObserver) RowSkipped(string)                                   {}
func (nopObserver) DecodeFailed(string, string)                         {}
func (nopObserver) QueryFinished(string, string, string, time.Duration) {}
