package interpreter

import "github.com/rhuss/funcrun/pkg/api"

// EventSink receives progress events. It is called synchronously and its
// outcome is ignored.
type EventSink func(api.ProgressEvent)

// emitExecuting sends the single "executing" event of a run. A nil sink
// drops the event.
func emitExecuting(sink EventSink, prefix, code string) {
	if sink == nil {
		return
	}
	sink(api.ProgressEvent{
		Type:        api.EventName(prefix, api.EventSuffixExecuting),
		ItemID:      api.NewItemID(),
		OutputIndex: "0",
		Code:        code,
	})
}
