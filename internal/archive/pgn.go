package archive

import (
	"fmt"
	"strings"
	"time"
)

// BuildPGN renders the record as PGN with numbered SAN moves. Secret queen
// squares go into custom tags so the game can be replayed with context.
func BuildPGN(r Record) string {
	var b strings.Builder
	date := r.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := r.PGNResult()

	b.WriteString("[Event \"Secret Queen\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(r.RoomID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(r.WhitePlayerID)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(r.BlackPlayerID)))
	if r.WhiteSecret != "" {
		b.WriteString(fmt.Sprintf("[WhiteSecretQueen \"%s\"]\n", sanitizePGN(r.WhiteSecret)))
	}
	if r.BlackSecret != "" {
		b.WriteString(fmt.Sprintf("[BlackSecretQueen \"%s\"]\n", sanitizePGN(r.BlackSecret)))
	}
	if strings.TrimSpace(r.Reason) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(r.Reason)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(r.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(r.MovesSAN[i])))
		if i+1 < len(r.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(r.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
