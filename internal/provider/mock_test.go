package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func drain(t *testing.T, ch <-chan StreamChunk) []StreamChunk {
	t.Helper()
	var got []StreamChunk
	for c := range ch {
		got = append(got, c)
	}
	return got
}

func TestMockPlaysChunksInOrder(t *testing.T) {
	m := NewMock(Turn{Chunks: []StreamChunk{
		{Kind: ChunkTextStart},
		{Kind: ChunkTextDelta, Text: "hi"},
		{Kind: ChunkTextEnd},
		{Kind: ChunkFinishStep, FinishReason: "end_turn"},
	}})

	ch, err := m.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got := drain(t, ch)
	if len(got) != 4 || got[1].Text != "hi" {
		t.Fatalf("unexpected chunks: %+v", got)
	}
	if m.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", m.Calls())
	}
}

func TestMockReturnsScriptedError(t *testing.T) {
	sentinel := errors.New("429 rate limited")
	m := NewMock(Turn{Err: sentinel}, Turn{Chunks: []StreamChunk{{Kind: ChunkTextDelta, Text: "ok"}}})

	_, err := m.Stream(context.Background(), Request{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error on first turn, got %v", err)
	}

	ch, err := m.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("second Stream: %v", err)
	}
	got := drain(t, ch)
	if len(got) != 1 || got[0].Text != "ok" {
		t.Fatalf("unexpected second-turn chunks: %+v", got)
	}
	if m.Calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", m.Calls())
	}
}

func TestMockBlocksUntilCancelled(t *testing.T) {
	m := NewMock(Turn{Chunks: []StreamChunk{{Kind: ChunkTextDelta, Text: "par"}}, Block: true})
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.Stream(ctx, Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	first := <-ch
	if first.Text != "par" {
		t.Fatalf("expected partial chunk, got %+v", first)
	}

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("stream did not close within 50ms of cancel")
	}
}
