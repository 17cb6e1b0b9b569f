package manifest

import "testing"

func TestBackoffSeconds(t *testing.T) {
	tests := []struct {
		attempts int
		expected uint32
	}{
		{0, 0},
		{1, 60},
		{2, 300},
		{3, 1800},
		{4, 1800},
		{10, 1800},
	}
	for _, tt := range tests {
		if got := BackoffSeconds(tt.attempts); got != tt.expected {
			t.Errorf("BackoffSeconds(%d) = %d, want %d", tt.attempts, got, tt.expected)
		}
	}
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name     string
		item     Item
		now      uint32
		expected bool
	}{
		{
			name:     "fresh pending item",
			item:     Item{Status: StatusPending},
			now:      1000,
			expected: true,
		},
		{
			name:     "uploaded item never eligible",
			item:     Item{Status: StatusUploaded},
			now:      1000,
			expected: false,
		},
		{
			name:     "failed item never eligible",
			item:     Item{Status: StatusFailed, UploadAttempts: 3},
			now:      1000,
			expected: false,
		},
		{
			name:     "attempts exhausted",
			item:     Item{Status: StatusPending, UploadAttempts: 3},
			now:      1000,
			expected: false,
		},
		{
			name:     "first retry within backoff window",
			item:     Item{Status: StatusPending, UploadAttempts: 1, LastAttemptEpoch: 1000},
			now:      1059,
			expected: false,
		},
		{
			name:     "first retry at backoff boundary",
			item:     Item{Status: StatusPending, UploadAttempts: 1, LastAttemptEpoch: 1000},
			now:      1060,
			expected: true,
		},
		{
			name:     "second retry waits five minutes",
			item:     Item{Status: StatusPending, UploadAttempts: 2, LastAttemptEpoch: 1000},
			now:      1299,
			expected: false,
		},
		{
			name:     "second retry after five minutes",
			item:     Item{Status: StatusPending, UploadAttempts: 2, LastAttemptEpoch: 1000},
			now:      1300,
			expected: true,
		},
		{
			name:     "clock moved backwards does not starve",
			item:     Item{Status: StatusPending, UploadAttempts: 1, LastAttemptEpoch: 5000},
			now:      100,
			expected: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Eligible(tt.now, 3); got != tt.expected {
				t.Errorf("Eligible(%d) = %v, want %v", tt.now, got, tt.expected)
			}
		})
	}
}

func TestOlderOrdering(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Item
		expected bool
	}{
		{
			name:     "earlier epoch wins",
			a:        Item{Seq: 9, CapturedAtEpoch: 100},
			b:        Item{Seq: 1, CapturedAtEpoch: 200},
			expected: true,
		},
		{
			name:     "equal epoch falls back to seq",
			a:        Item{Seq: 1, CapturedAtEpoch: 100},
			b:        Item{Seq: 2, CapturedAtEpoch: 100},
			expected: true,
		},
		{
			name:     "timestamped sorts before unsynced",
			a:        Item{Seq: 50, CapturedAtEpoch: 100},
			b:        Item{Seq: 1, CapturedAtEpoch: 0},
			expected: true,
		},
		{
			name:     "unsynced sorts after timestamped",
			a:        Item{Seq: 1, CapturedAtEpoch: 0},
			b:        Item{Seq: 50, CapturedAtEpoch: 100},
			expected: false,
		},
		{
			name:     "both unsynced order by seq",
			a:        Item{Seq: 3, CapturedAtEpoch: 0},
			b:        Item{Seq: 7, CapturedAtEpoch: 0},
			expected: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := older(&tt.a, &tt.b); got != tt.expected {
				t.Errorf("older(%+v, %+v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}
