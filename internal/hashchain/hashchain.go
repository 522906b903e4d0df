// Package hashchain computes and verifies the linking hashes of product
// custody chains.
//
// Every block records the SHA-256 of its predecessor, so editing any committed
// block changes its own hash and breaks every later previous-hash link.
// Block 0 links to the sentinel "0". All functions are pure.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmerrifield20/provenance/internal/provenance/model"
)

// ErrIntegrity is wrapped by Result.Err for chains that fail verification.
var ErrIntegrity = errors.New("hash chain integrity check failed")

// canonicalBlock fixes field order and encodings for hashing. Adding a field
// here changes every hash; treat it as a wire format.
type canonicalBlock struct {
	BlockNumber  int    `json:"block_number"`
	Stage        string `json:"stage"`
	Location     string `json:"location"`
	Handler      string `json:"handler"`
	Notes        string `json:"notes"`
	GPS          string `json:"gps"`
	PhotoRef     string `json:"photo_ref"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
}

// ComputeHash returns the hex SHA-256 of b's immutable fields linked to
// previousHash. b.Hash and b.PreviousHash are ignored.
func ComputeHash(b *model.Block, previousHash string) string {
	// Marshalling a struct of strings and ints cannot fail.
	data, _ := json.Marshal(canonicalBlock{
		BlockNumber:  b.BlockNumber,
		Stage:        string(b.Stage),
		Location:     b.Location,
		Handler:      b.Handler,
		Notes:        b.Notes,
		GPS:          formatGPS(b.GPS),
		PhotoRef:     b.PhotoRef,
		Timestamp:    b.Timestamp.UTC().Format(time.RFC3339Nano),
		PreviousHash: previousHash,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// formatGPS renders a fix with the shortest exact float representation, so
// values survive a float8 round trip and still hash identically.
func formatGPS(g *model.GPS) string {
	if g == nil {
		return ""
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return f(g.Lat) + "," + f(g.Lng) + "," + f(g.Accuracy)
}

// Seal sets b.PreviousHash and b.Hash.
func Seal(b *model.Block, previousHash string) {
	b.PreviousHash = previousHash
	b.Hash = ComputeHash(b, previousHash)
}

// Result is the outcome of VerifyChain.
type Result struct {
	Valid             bool   `json:"valid"`
	FirstInvalidIndex *int   `json:"first_invalid_index,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// Err returns nil for a valid chain, otherwise an error wrapping ErrIntegrity.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	idx := -1
	if r.FirstInvalidIndex != nil {
		idx = *r.FirstInvalidIndex
	}
	return fmt.Errorf("%w: block %d: %s", ErrIntegrity, idx, r.Reason)
}

func invalid(i int, format string, args ...any) Result {
	return Result{FirstInvalidIndex: &i, Reason: fmt.Sprintf(format, args...)}
}

// VerifyChain walks blocks in order and reports the earliest index at which
// numbering, linkage, the self hash or timestamp ordering is wrong.
// An empty chain is invalid at index 0: every product has a genesis block.
func VerifyChain(blocks []model.Block) Result {
	if len(blocks) == 0 {
		return invalid(0, "chain is empty")
	}
	for i := range blocks {
		curr := &blocks[i]
		if curr.BlockNumber != i {
			return invalid(i, "block number %d out of sequence", curr.BlockNumber)
		}

		want := model.GenesisPreviousHash
		if i > 0 {
			prev := &blocks[i-1]
			want = prev.Hash
			if curr.Timestamp.Before(prev.Timestamp) {
				return invalid(i, "timestamp precedes block %d", i-1)
			}
		}
		if curr.PreviousHash != want {
			return invalid(i, "previous hash does not link")
		}
		if curr.Hash != ComputeHash(curr, curr.PreviousHash) {
			return invalid(i, "stored hash does not match contents")
		}
	}
	return Result{Valid: true}
}
