package manifest

// Status is the upload state of a captured item.
// Transitions only flow PENDING -> PENDING (retry), PENDING -> UPLOADED,
// PENDING -> FAILED. UPLOADED and FAILED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusUploaded Status = "UPLOADED"
	StatusFailed   Status = "FAILED"
)

// ItemType distinguishes the two media kinds the node produces.
type ItemType string

const (
	TypePhoto ItemType = "photo"
	TypeAudio ItemType = "audio"
)

// Item is the durable per-capture record. One JSON file per sequence
// number under the manifest directory; the manifest is the sole source
// of truth for upload state. A media file without a manifest is an
// orphan and is never uploaded or retained.
type Item struct {
	Filepath         string   `json:"filepath"`
	Seq              uint32   `json:"seq"`
	CapturedAtEpoch  uint32   `json:"captured_at_epoch"`
	Status           Status   `json:"status"`
	ItemType         ItemType `json:"item_type"`
	ContentType      string   `json:"content_type"`
	UploadAttempts   int      `json:"upload_attempts"`
	LastAttemptEpoch uint32   `json:"last_attempt_epoch"`
}

// Terminal reports whether the item can no longer change state.
func (it *Item) Terminal() bool {
	return it.Status == StatusUploaded || it.Status == StatusFailed
}

// BackoffSeconds returns the wait before an item with the given attempt
// count becomes eligible for another upload attempt.
func BackoffSeconds(attempts int) uint32 {
	switch {
	case attempts <= 0:
		return 0
	case attempts == 1:
		return 60
	case attempts == 2:
		return 300
	default:
		return 1800
	}
}

// Eligible reports whether a PENDING item may be attempted at the given
// epoch under the bounded-retry policy.
func (it *Item) Eligible(now uint32, maxAttempts int) bool {
	if it.Status != StatusPending {
		return false
	}
	if it.UploadAttempts >= maxAttempts {
		return false
	}
	return now-it.LastAttemptEpoch >= BackoffSeconds(it.UploadAttempts) ||
		now < it.LastAttemptEpoch // clock went backwards; don't starve the item forever
}

// older reports whether a should be uploaded (or reclaimed) before b.
//
// Items captured before time sync carry epoch 0 and sort after every
// timestamped item; among themselves they order by ascending sequence.
// These comparison rules are kept exactly as the node has always
// behaved, including the interleaving at the moment sync first succeeds.
func older(a, b *Item) bool {
	aSynced := a.CapturedAtEpoch != 0
	bSynced := b.CapturedAtEpoch != 0
	switch {
	case aSynced && bSynced:
		if a.CapturedAtEpoch != b.CapturedAtEpoch {
			return a.CapturedAtEpoch < b.CapturedAtEpoch
		}
		return a.Seq < b.Seq
	case aSynced:
		return true
	case bSynced:
		return false
	default:
		return a.Seq < b.Seq
	}
}
