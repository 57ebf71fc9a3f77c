package jobqueue

import (
	"testing"
	"time"
)

func TestCompare(t *testing.T) {
	t.Parallel()
	now := time.Now()
	older := now.Add(-time.Second)
	tests := []struct {
		name string
		a, b Descriptor
		want int
	}{
		{"lower priority is less", Descriptor{Priority: 1, VRT: 1, EnqueuedAt: now}, Descriptor{Priority: 2, VRT: 9, EnqueuedAt: now}, -1},
		{"more vrt is less", Descriptor{Priority: 1, VRT: 9, EnqueuedAt: older}, Descriptor{Priority: 1, VRT: 1, EnqueuedAt: now}, -1},
		{"newer is less", Descriptor{Priority: 1, VRT: 1, EnqueuedAt: now}, Descriptor{Priority: 1, VRT: 1, EnqueuedAt: older}, -1},
		{"older is greater", Descriptor{Priority: 1, VRT: 1, EnqueuedAt: older}, Descriptor{Priority: 1, VRT: 1, EnqueuedAt: now}, 1},
		{"name is ignored", Descriptor{Priority: 1, VRT: 1, EnqueuedAt: now, Name: "x"}, Descriptor{Priority: 1, VRT: 1, EnqueuedAt: now, Name: "y"}, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := compare(tt.a, tt.b); got != tt.want {
				t.Fatalf("compare = %d, want %d", got, tt.want)
			}
			if got := compare(tt.b, tt.a); got != -tt.want {
				t.Fatalf("compare reversed = %d, want %d", got, -tt.want)
			}
			if Less(tt.a, tt.b) != (tt.want < 0) {
				t.Fatal("Less disagrees with compare")
			}
			if OrderEqual(tt.a, tt.b) != (tt.want == 0) {
				t.Fatal("OrderEqual disagrees with compare")
			}
		})
	}
}

func TestRemoveStatusString(t *testing.T) {
	t.Parallel()
	for st, want := range map[RemoveStatus]string{Removed: "removed", RemoveNotFound: "not found", RemoveEmpty: "empty", RemoveStatus(9): "unknown"} {
		if got := st.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", st, got, want)
		}
	}
}
