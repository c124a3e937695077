package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/okian/leaderboard/internal/domain/model"
)

func populate(b *testing.B, s Store, players int) {
	b.Helper()
	ctx := context.Background()
	for i := 0; i < players; i++ {
		name := fmt.Sprintf("player-%06d", i)
		err := s.WithinPlayer(ctx, name, func(tx PlayerTx) error {
			rec := model.ScoreRecord{
				PlayerName:  name,
				Level:       1,
				Score:       rand.IntN(model.MaxScore) + 1,
				SubmittedAt: time.Unix(int64(i), 0).UTC(),
			}
			return tx.Insert(ctx, &rec)
		})
		if err != nil {
			b.Fatalf("populate: %v", err)
		}
	}
}

func BenchmarkMemoryStore_RankLevel(b *testing.B) {
	for _, players := range []int{1_000, 100_000} {
		b.Run(fmt.Sprintf("players=%d", players), func(b *testing.B) {
			s := NewMemoryStore(context.Background())
			defer s.Close()
			populate(b, s, players)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.RankLevel(context.Background(), 1); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMemoryStore_WithinPlayerParallel(b *testing.B) {
	s := NewMemoryStore(context.Background())
	defer s.Close()
	populate(b, s, 10_000)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			name := fmt.Sprintf("player-%06d", rand.IntN(10_000))
			err := s.WithinPlayer(ctx, name, func(tx PlayerTx) error {
				cur, err := tx.Get(ctx, 1)
				if err != nil {
					return err
				}
				cur.Score++
				cur.SubmittedAt = time.Now().UTC()
				return tx.Update(ctx, cur)
			})
			if err != nil {
				b.Error(err)
				return
			}
		}
	})
}
