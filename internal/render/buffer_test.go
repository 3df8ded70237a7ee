// buffer_test.go covers the append/replace sink and its sticky scroll pin.
package render

import (
	"reflect"
	"testing"
)

func TestBufferStartsLoadingAndPinned(t *testing.T) {
	b := NewBuffer()
	if !b.Loading() {
		t.Fatalf("fresh buffer should be loading")
	}
	if !b.PinnedToBottom() {
		t.Fatalf("fresh buffer should be pinned to the bottom")
	}
	b.Append("first")
	if b.Loading() {
		t.Fatalf("append should clear the loading state")
	}
}

func TestBufferAppendKeepsOrder(t *testing.T) {
	b := NewBuffer()
	b.Append("a", "b")
	b.Append("c")
	got := b.Snapshot()
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected content: want %v got %v", want, got)
	}
}

func TestBufferReplaceDiscardsContent(t *testing.T) {
	b := NewBuffer()
	b.Append("old-1", "old-2")
	b.Replace([]string{"new"})
	got := b.Snapshot()
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("replace should discard prior content, got %v", got)
	}
}

func TestBufferResetReentersLoadingButKeepsPin(t *testing.T) {
	b := NewBuffer(WithViewport(2))
	b.Append("a", "b", "c", "d")
	b.ScrollUp(1)
	if b.PinnedToBottom() {
		t.Fatalf("scroll up should unpin")
	}
	b.Reset()
	if !b.Loading() {
		t.Fatalf("reset should re-enter loading")
	}
	if b.PinnedToBottom() {
		t.Fatalf("reset must not touch the user's scroll pin")
	}
	if b.Len() != 0 {
		t.Fatalf("reset should clear content, got %d lines", b.Len())
	}
}

func TestBufferScrollPinIsSticky(t *testing.T) {
	b := NewBuffer(WithViewport(2))
	b.Append("1", "2", "3", "4")
	b.ScrollUp(2)
	view := b.VisibleLines()
	if !reflect.DeepEqual(view, []string{"1", "2"}) {
		t.Fatalf("unexpected view after scroll up: %v", view)
	}
	// New content must not move an unpinned view.
	b.Append("5", "6")
	view = b.VisibleLines()
	if !reflect.DeepEqual(view, []string{"1", "2"}) {
		t.Fatalf("append moved an unpinned view: %v", view)
	}
	b.ScrollToBottom()
	view = b.VisibleLines()
	if !reflect.DeepEqual(view, []string{"5", "6"}) {
		t.Fatalf("unexpected view after re-pin: %v", view)
	}
	// Pinned views track new content.
	b.Append("7")
	view = b.VisibleLines()
	if !reflect.DeepEqual(view, []string{"6", "7"}) {
		t.Fatalf("pinned view should track appends: %v", view)
	}
}

func TestBufferScrollDownRepinsAtBottom(t *testing.T) {
	b := NewBuffer(WithViewport(2))
	b.Append("1", "2", "3", "4")
	b.ScrollUp(2)
	b.ScrollDown(1)
	if b.PinnedToBottom() {
		t.Fatalf("one row short of the bottom should stay unpinned")
	}
	b.ScrollDown(1)
	if !b.PinnedToBottom() {
		t.Fatalf("reaching the bottom should re-pin")
	}
}

func TestBufferEvictsOldestBeyondCap(t *testing.T) {
	b := NewBuffer(WithMaxLines(3))
	b.Append("1", "2", "3", "4", "5")
	got := b.Snapshot()
	want := []string{"3", "4", "5"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected retained lines: want %v got %v", want, got)
	}
}

func TestBufferEvictionAdjustsUnpinnedOffset(t *testing.T) {
	b := NewBuffer(WithMaxLines(4), WithViewport(2))
	b.Append("1", "2", "3", "4")
	b.ScrollUp(2) // viewing lines 1,2
	b.Append("5", "6")
	// Lines 1 and 2 were evicted; the view clamps to the new oldest line.
	view := b.VisibleLines()
	if !reflect.DeepEqual(view, []string{"3", "4"}) {
		t.Fatalf("unexpected view after eviction: %v", view)
	}
}

func TestBufferScrollToUnpinsForEarlierLines(t *testing.T) {
	b := NewBuffer(WithViewport(2))
	b.Append("1", "2", "3", "4", "5", "6")
	b.ScrollTo(1)
	if b.PinnedToBottom() {
		t.Fatalf("jumping to an early line should unpin")
	}
	view := b.VisibleLines()
	if !reflect.DeepEqual(view, []string{"2", "3"}) {
		t.Fatalf("unexpected view after jump: %v", view)
	}
	b.ScrollTo(5)
	if !b.PinnedToBottom() {
		t.Fatalf("jumping into the bottom window should pin")
	}
}

func TestBufferVisibleLinesTruncatesToWidth(t *testing.T) {
	b := NewBuffer(WithWidth(4))
	b.Append("abcdefgh", "ab")
	view := b.VisibleLines()
	if !reflect.DeepEqual(view, []string{"abcd", "ab"}) {
		t.Fatalf("unexpected truncation: %v", view)
	}
}

func TestBufferChangeListenerSeesOps(t *testing.T) {
	var ops []Op
	var last []string
	b := NewBuffer(WithChangeListener(func(op Op, lines []string) {
		ops = append(ops, op)
		last = lines
	}))
	b.Append("a")
	b.Replace([]string{"b", "c"})
	b.Reset()
	want := []Op{OpAppend, OpReplace, OpReset}
	if !reflect.DeepEqual(ops, want) {
		t.Fatalf("unexpected op sequence: %v", ops)
	}
	if last != nil {
		t.Fatalf("reset should pass nil lines, got %v", last)
	}
}
