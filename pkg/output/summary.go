package output

import (
	"context"

	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

// Summarize reduces a status snapshot to its aggregate counts.
func Summarize(s api.StatusResponse) SummaryRecord {
	sum := SummaryRecord{
		Minions: len(s.Minions),
		Tasks:   len(s.Tasks),
		Counts:  make(map[taskstore.Status]int, len(s.Counts)),
		Hashes:  len(s.Hashes),
	}
	for status, n := range s.Counts {
		sum.Counts[status] = n
	}
	for _, m := range s.Minions {
		if m.Status == directory.StatusActive {
			sum.ActiveMinions++
		}
	}
	for _, h := range s.Hashes {
		if h.Result != "" {
			sum.Cracked++
		}
	}
	return sum
}

// WriteSnapshot emits every minion, hash and task of s followed by a
// summary record.
func WriteSnapshot(ctx context.Context, w Writer, s api.StatusResponse) error {
	for i := range s.Minions {
		if err := w.WriteMinion(ctx, &s.Minions[i]); err != nil {
			return err
		}
	}
	for i := range s.Hashes {
		if err := w.WriteHash(ctx, &s.Hashes[i]); err != nil {
			return err
		}
	}
	for i := range s.Tasks {
		if err := w.WriteTask(ctx, &s.Tasks[i]); err != nil {
			return err
		}
	}
	sum := Summarize(s)
	return w.WriteSummary(ctx, &sum)
}
