package database

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a record does not exist or is not visible to the caller
var ErrNotFound = errors.New("record not found")

// likeEscape is the ESCAPE character used in LIKE patterns; it is valid in MySQL, Postgres and SQLite alike.
const likeEscape = "!"

// containsPattern builds a lowercase "%term%" pattern with LIKE wildcards escaped.
// The term is folded here with Unicode rules; the column side relies on the server's LOWER,
// which folds Ä/Ö on MySQL utf8mb4 and on Postgres with a UTF-8 locale. SQLite's LOWER is ASCII only.
func containsPattern(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return "%" + r.Replace(term) + "%"
}
