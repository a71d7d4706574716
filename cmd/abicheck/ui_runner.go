package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"abicheck/internal/pipeline"
	"abicheck/internal/ui"
)

type dumpOutcome struct {
	result pipeline.DumpResult
	err    error
}

func runDumpWithUI(ctx context.Context, title string, req *pipeline.DumpRequest) (pipeline.DumpResult, error) {
	if req == nil {
		return pipeline.DumpResult{}, fmt.Errorf("missing dump request")
	}
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan dumpOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = pipeline.ChannelSink{Ch: events}
		res, err := pipeline.Dump(ctx, &reqCopy)
		outcomeCh <- dumpOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, req.Units, pipeline.StageBuild, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	// дочитываем события, иначе Dump заблокируется на полном канале
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
