// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Level and score bounds.
const (
	// AggregateLevel holds the per-player total across all real levels.
	AggregateLevel = 0
	MinLevel       = 1
	MaxLevel       = 5

	MinScore = 1
	MaxScore = 1_000_000

	MaxPlayerNameLength = 50
)

// ScoreRecord is one row per (player, level). Level 0 is the player's total.
type ScoreRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerName  string    `gorm:"size:255;not null" json:"playerName"`
	PlayerKey   string    `gorm:"size:255;not null;uniqueIndex:idx_player_level,priority:1" json:"-"`
	Level       int       `gorm:"not null;uniqueIndex:idx_player_level,priority:2;index:idx_level_rank,priority:1" json:"level"`
	Score       int       `gorm:"not null;index:idx_level_rank,priority:2,sort:desc" json:"score"`
	SubmittedAt time.Time `gorm:"not null;index:idx_level_rank,priority:3" json:"submittedAt"`
}

// TableName pins the table name used by the relational store.
func (ScoreRecord) TableName() string { return "player_scores" }

// IsAggregate reports whether r is the synthetic level-0 total.
func (r ScoreRecord) IsAggregate() bool { return r.Level == AggregateLevel }

// Submission is a single score submission as received from a client.
type Submission struct {
	PlayerName string `json:"playerName"`
	Level      int    `json:"level"`
	Score      int    `json:"score"`
}

// NormalizeName trims name and collapses every run of whitespace into one space.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	space := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Key returns the case-insensitive lookup key for an already normalized name.
func Key(normalized string) string {
	return strings.ToLower(normalized)
}

// NameLength counts runes, not bytes.
func NameLength(name string) int {
	return utf8.RuneCountInString(name)
}

// IsRealLevel reports whether level accepts submissions.
func IsRealLevel(level int) bool {
	return level >= MinLevel && level <= MaxLevel
}

// IsRankedLevel reports whether level can be queried, including the aggregate.
func IsRankedLevel(level int) bool {
	return level == AggregateLevel || IsRealLevel(level)
}
