package comment

import "testing"

func makeComments(n int) []Comment {
	items := make([]Comment, n)
	for i := range items {
		items[i] = Comment{ID: string(rune('a' + i))}
	}
	return items
}

func TestSelectPageBounds(t *testing.T) {
	list := makeComments(17)

	first := SelectPage(list, 0, 8)
	if first.TotalPages != 3 {
		t.Fatalf("totalPages = %d, want 3", first.TotalPages)
	}
	if first.HasPrev || !first.HasNext {
		t.Errorf("page 0: hasPrev=%v hasNext=%v, want false/true", first.HasPrev, first.HasNext)
	}
	if len(first.Items) != 8 {
		t.Errorf("page 0 has %d items, want 8", len(first.Items))
	}

	last := SelectPage(list, 2, 8)
	if !last.HasPrev || last.HasNext {
		t.Errorf("page 2: hasPrev=%v hasNext=%v, want true/false", last.HasPrev, last.HasNext)
	}
	if len(last.Items) != 1 {
		t.Errorf("page 2 has %d items, want 1", len(last.Items))
	}
}

func TestSelectPageEmptyList(t *testing.T) {
	page := SelectPage(nil, 0, 8)
	if page.TotalPages != 0 {
		t.Errorf("totalPages = %d, want 0", page.TotalPages)
	}
	if page.ShowSort || page.ShowControls {
		t.Error("empty list must render no sort and no pagination controls")
	}
	if len(page.Items) != 0 || page.HasPrev || page.HasNext {
		t.Errorf("unexpected page for empty list: %+v", page)
	}
}

func TestSelectPageClampsOutOfRange(t *testing.T) {
	list := makeComments(10)

	past := SelectPage(list, 99, 8)
	if past.PageIndex != 1 {
		t.Errorf("pageIndex clamped to %d, want 1", past.PageIndex)
	}
	if len(past.Items) != 2 {
		t.Errorf("clamped page has %d items, want 2", len(past.Items))
	}

	before := SelectPage(list, -3, 8)
	if before.PageIndex != 0 {
		t.Errorf("pageIndex clamped to %d, want 0", before.PageIndex)
	}
}

func TestSelectPageControlVisibility(t *testing.T) {
	short := SelectPage(makeComments(5), 0, 8)
	if !short.ShowSort {
		t.Error("non-empty list must show sort controls")
	}
	if short.ShowControls {
		t.Error("single-page list must not show prev/next controls")
	}

	long := SelectPage(makeComments(9), 0, 8)
	if !long.ShowControls {
		t.Error("list longer than one page must show prev/next controls")
	}
}

func TestParseSortKey(t *testing.T) {
	if ParseSortKey("popularity") != SortPopularity {
		t.Error("popularity should parse")
	}
	if ParseSortKey("") != SortLatest || ParseSortKey("bogus") != SortLatest {
		t.Error("unknown keys default to latest")
	}
	if SortLatest.OrderField() != "createdAt" || SortPopularity.OrderField() != "reactionCount" {
		t.Error("unexpected order fields")
	}
}
