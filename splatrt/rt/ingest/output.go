package ingest

import (
	"github.com/gekko3d/gsplat/splatrt/rt/sorter"
)

// Output receives everything the coordinator publishes. Methods are called
// from the worker goroutine, one at a time, and should return quickly.
type Output interface {
	SortResult(res *sorter.Result)
	// DecodedBuffer hands over a private copy of a freshly decoded record
	// buffer so the caller can keep or export it.
	DecodedBuffer(buf []byte)
	Failed(err error)
}

// OutputFuncs adapts plain functions to Output. Nil fields are ignored.
type OutputFuncs struct {
	OnSortResult    func(res *sorter.Result)
	OnDecodedBuffer func(buf []byte)
	OnFailed        func(err error)
}

func (o OutputFuncs) SortResult(res *sorter.Result) {
	if o.OnSortResult != nil {
		o.OnSortResult(res)
	}
}

func (o OutputFuncs) DecodedBuffer(buf []byte) {
	if o.OnDecodedBuffer != nil {
		o.OnDecodedBuffer(buf)
	}
}

func (o OutputFuncs) Failed(err error) {
	if o.OnFailed != nil {
		o.OnFailed(err)
	}
}
